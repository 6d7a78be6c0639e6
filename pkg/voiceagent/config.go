package voiceagent

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultEndpoint = "wss://api.elevenlabs.io/v1/convai/conversation"

// Config holds the session-level settings for the voice agent client.
type Config struct {
	Endpoint       string            `json:"endpoint"`
	AgentID        string            `json:"agent_id"`
	APIKey         string            `json:"-"`
	Headers        map[string]string `json:"headers,omitempty"`
	ConnectTimeout time.Duration     `json:"connect_timeout"`
	UseTokenAuth   bool              `json:"use_token_auth"`
	DebugWebsocket bool              `json:"debug_websocket"`
	DebugAudio     bool              `json:"debug_audio"`
	DebugAudioDir  string            `json:"debug_audio_dir,omitempty"`
}

// AudioConfig holds capture and playback settings. Defaults match the wire
// protocol's expected format: 16 kHz mono 16-bit PCM.
type AudioConfig struct {
	SampleRate     int           `json:"sample_rate"`
	Channels       int           `json:"channels"`
	BitsPerSample  int           `json:"bits_per_sample"`
	BufferSize     int           `json:"buffer_size"`
	UpdateInterval time.Duration `json:"update_interval"`
	RotationPeriod time.Duration `json:"rotation_period"`
	StallThreshold time.Duration `json:"stall_threshold"`
	MinChunkBytes  int64         `json:"min_chunk_bytes"`
	SettleDelay    time.Duration `json:"settle_delay"`
	DeviceID       *int          `json:"device_id,omitempty"`
}

func NewConfig() *Config {
	c := &Config{
		Endpoint:       defaultEndpoint,
		ConnectTimeout: 5 * time.Second,
		UseTokenAuth:   true,
		Headers:        make(map[string]string),
	}
	c.loadFromEnv()
	return c
}

func NewAudioConfig() *AudioConfig {
	return &AudioConfig{
		SampleRate:     16000,
		Channels:       1,
		BitsPerSample:  16,
		BufferSize:     1024,
		UpdateInterval: 500 * time.Millisecond,
		RotationPeriod: 5 * time.Second,
		StallThreshold: 3 * time.Second,
		MinChunkBytes:  1000,
		SettleDelay:    300 * time.Millisecond,
	}
}

func (c *Config) loadFromEnv() {
	_ = godotenv.Load()

	if endpoint := os.Getenv("VOICEAGENT_WS_ENDPOINT"); endpoint != "" {
		c.Endpoint = endpoint
	}
	if agentID := os.Getenv("VOICEAGENT_AGENT_ID"); agentID != "" {
		c.AgentID = agentID
	}
	if apiKey := os.Getenv("VOICEAGENT_API_KEY"); apiKey != "" {
		c.APIKey = apiKey
	}
	if timeout := os.Getenv("VOICEAGENT_CONNECT_TIMEOUT"); timeout != "" {
		if val, err := strconv.ParseFloat(timeout, 64); err == nil && val > 0 {
			c.ConnectTimeout = time.Duration(val * float64(time.Second))
		}
	}
	c.UseTokenAuth = os.Getenv("VOICEAGENT_USE_TOKEN_AUTH") != "false"
	c.DebugWebsocket = os.Getenv("VOICEAGENT_DEBUG_WEBSOCKET") == "true"
	c.DebugAudio = os.Getenv("VOICEAGENT_DEBUG_AUDIO") == "true"
	if dir := os.Getenv("VOICEAGENT_DEBUG_AUDIO_DIR"); dir != "" {
		c.DebugAudioDir = dir
	}
}

// Validate returns a list of configuration issues, empty when the config is
// usable.
func (c *Config) Validate() []string {
	issues := []string{}

	if c.AgentID == "" {
		issues = append(issues, "agent ID not set (VOICEAGENT_AGENT_ID)")
	}
	if c.UseTokenAuth && c.APIKey == "" {
		issues = append(issues, "API key not set (VOICEAGENT_API_KEY)")
	}
	if !strings.HasPrefix(c.Endpoint, "ws://") && !strings.HasPrefix(c.Endpoint, "wss://") {
		issues = append(issues, fmt.Sprintf("invalid websocket endpoint: %s", c.Endpoint))
	}
	if c.ConnectTimeout <= 0 {
		issues = append(issues, "connect timeout must be positive")
	}

	return issues
}

func (a *AudioConfig) Validate() []string {
	issues := []string{}

	if a.SampleRate <= 0 {
		issues = append(issues, "sample rate must be positive")
	}
	if a.Channels != 1 {
		issues = append(issues, "only mono capture is supported")
	}
	if a.BitsPerSample != 16 {
		issues = append(issues, "only 16-bit samples are supported")
	}
	if a.UpdateInterval <= 0 {
		issues = append(issues, "update interval must be positive")
	}
	if a.RotationPeriod < a.UpdateInterval {
		issues = append(issues, "rotation period must not be shorter than the update interval")
	}

	return issues
}

// ConversationURL returns the dial URL parameterized by the agent ID.
func (c *Config) ConversationURL() string {
	return fmt.Sprintf("%s?agent_id=%s", c.Endpoint, c.AgentID)
}
