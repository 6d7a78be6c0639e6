package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lumonote/voiceagent-go/pkg/voiceagent"
)

var (
	verbose  bool
	apiKey   string
	agentID  string
	endpoint string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voiceagent",
		Short: "Voice agent streaming CLI",
		Long:  "A command-line interface for the voice agent streaming SDK",
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent-id", "", "Agent identifier for the conversation")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "WebSocket endpoint URL")

	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(devicesCmd())

	if err := rootCmd.Execute(); err != nil {
		voiceagent.NewLogger(nil).WithError(err).Fatal("CLI execution failed")
	}
}

func buildConfig() *voiceagent.Config {
	config := voiceagent.NewConfig()
	if apiKey != "" {
		config.APIKey = apiKey
	}
	if agentID != "" {
		config.AgentID = agentID
	}
	if endpoint != "" {
		config.Endpoint = endpoint
	}
	return config
}

func buildLogger() *voiceagent.Logger {
	logConfig := voiceagent.DefaultLogConfig()
	if verbose {
		logConfig.Level = voiceagent.DebugLevel
	}
	return voiceagent.NewLogger(logConfig)
}

func listenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Start a voice agent listen session",
		Long:  "Connect to the voice service, stream microphone audio and play agent responses until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := buildConfig()
			if issues := config.Validate(); len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "config: %s\n", issue)
				}
				return fmt.Errorf("invalid configuration")
			}

			log := buildLogger()
			audioConfig := voiceagent.NewAudioConfig()

			recorder, err := voiceagent.NewPortAudioRecorder(audioConfig, log)
			if err != nil {
				return err
			}
			defer recorder.Close()
			player := voiceagent.NewPortAudioPlayer(audioConfig, log)

			session := voiceagent.NewVoiceSession(config, audioConfig, recorder, player, log)
			defer session.Cleanup()

			events := session.Events()
			events.Subscribe(voiceagent.EventConversationInitialized, func(payload any) {
				fmt.Printf("conversation: %v\n", payload)
			})
			events.Subscribe(voiceagent.EventUserTranscript, func(payload any) {
				fmt.Printf("you: %v\n", payload)
			})
			events.Subscribe(voiceagent.EventAgentResponse, func(payload any) {
				fmt.Printf("agent: %v\n", payload)
			})
			events.SubscribeError(func(agentErr *voiceagent.AgentError) {
				fmt.Fprintf(os.Stderr, "error: %s (%s)\n", agentErr.Message, agentErr.Code)
			})

			if err := session.Start(); err != nil {
				return err
			}
			fmt.Println("Listening... press Ctrl+C to stop.")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			fmt.Println("\nStopping...")
			if err := session.Stop(); err != nil {
				log.WithError(err).Warn("stop failed")
			}

			transcripts, responses := session.Tracker().History()
			if len(transcripts) > 0 || len(responses) > 0 {
				fmt.Printf("\nSession summary: %d transcripts, %d responses\n",
					len(transcripts), len(responses))
			}
			return nil
		},
	}

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Long:  "Display current configuration settings and validation results",
		Run: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()

			config := buildConfig()
			audioConfig := voiceagent.NewAudioConfig()

			fmt.Println("Current Configuration:")
			fmt.Printf("  API Key: %s\n", maskString(config.APIKey))
			fmt.Printf("  Agent ID: %s\n", config.AgentID)
			fmt.Printf("  Endpoint: %s\n", config.Endpoint)
			fmt.Printf("  Connect Timeout: %s\n", config.ConnectTimeout)
			fmt.Printf("  Token Auth: %v\n", config.UseTokenAuth)
			fmt.Printf("  Debug WebSocket: %v\n", config.DebugWebsocket)
			fmt.Printf("  Debug Audio: %v\n", config.DebugAudio)

			fmt.Println("\nAudio Configuration:")
			fmt.Printf("  Sample Rate: %d Hz\n", audioConfig.SampleRate)
			fmt.Printf("  Channels: %d\n", audioConfig.Channels)
			fmt.Printf("  Bits Per Sample: %d\n", audioConfig.BitsPerSample)
			fmt.Printf("  Update Interval: %s\n", audioConfig.UpdateInterval)
			fmt.Printf("  Rotation Period: %s\n", audioConfig.RotationPeriod)
			fmt.Printf("  Stall Threshold: %s\n", audioConfig.StallThreshold)
			fmt.Printf("  Min Chunk Bytes: %d\n", audioConfig.MinChunkBytes)

			if issues := config.Validate(); len(issues) > 0 {
				fmt.Println("\nIssues:")
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
			} else {
				fmt.Println("\nConfiguration OK")
			}
		},
	}

	return cmd
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "Enumerate capture and playback devices visible to the audio backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := voiceagent.ListAudioDevices()
			if err != nil {
				return err
			}

			fmt.Printf("Found %d audio devices:\n\n", len(devices))
			for _, d := range devices {
				marker := " "
				if d.DefaultInput {
					marker = "*"
				}
				fmt.Printf("%s [%d] %s\n", marker, d.Index, d.Name)
				fmt.Printf("      inputs: %d  outputs: %d  sample rate: %.0f Hz", d.MaxInputs, d.MaxOutputs, d.SampleRate)
				if d.DefaultOutput {
					fmt.Print("  (default output)")
				}
				fmt.Println()
			}
			if len(devices) > 0 {
				fmt.Println("\n* default input device")
			}
			return nil
		},
	}

	return cmd
}

// maskString hides the middle of sensitive values.
func maskString(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
