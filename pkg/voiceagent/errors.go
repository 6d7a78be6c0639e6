package voiceagent

// Error codes as constants
const (
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeDeviceConfig      = "DEVICE_CONFIG_ERROR"
	ErrCodeStallRecovery     = "STALL_RECOVERY"
	ErrCodeRotationFailed    = "ROTATION_FAILED"
	ErrCodeConnectionFailed  = "CONNECTION_ERROR"
	ErrCodeConnectionTimeout = "CONNECTION_TIMEOUT"
	ErrCodeFrameParse        = "FRAME_PARSE_ERROR"
	ErrCodePlayback          = "PLAYBACK_ERROR"
	ErrCodeSendFailed        = "SEND_FAILED"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeUnknown           = "UNKNOWN_ERROR"
)

// Specific error creators with common codes
func NewPermissionError(message string) *AgentError {
	return NewAgentError(message, ErrCodePermissionDenied)
}

func NewDeviceConfigError(message string) *AgentError {
	return NewAgentError(message, ErrCodeDeviceConfig)
}

func NewRotationError(message string) *AgentError {
	return NewAgentError(message, ErrCodeRotationFailed)
}

func NewConnectionError(message string) *AgentError {
	return NewAgentError(message, ErrCodeConnectionFailed)
}

func NewConnectionTimeoutError(message string) *AgentError {
	return NewAgentError(message, ErrCodeConnectionTimeout)
}

func NewFrameParseError(message string) *AgentError {
	return NewAgentError(message, ErrCodeFrameParse)
}

func NewPlaybackError(message string) *AgentError {
	return NewAgentError(message, ErrCodePlayback)
}

func NewAuthError(message string) *AgentError {
	return NewAgentError(message, ErrCodeAuthFailed)
}

func NewConfigError(message string) *AgentError {
	return NewAgentError(message, ErrCodeConfigInvalid)
}

// WrapError wraps any error as an AgentError with the given code.
func WrapError(err error, code string) *AgentError {
	if err == nil {
		return nil
	}
	agentErr := NewAgentError(err.Error(), code)
	agentErr.AddDetail("original_error", err.Error())
	return agentErr
}

// AddDetail attaches a key/value pair to the error and returns it for chaining.
func (e *AgentError) AddDetail(key string, value interface{}) *AgentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AgentError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err *AgentError, code string) bool {
	if err == nil {
		return false
	}
	return err.Code == code
}

// IsFatalToStream reports whether the error ends the current streaming
// session rather than being recoverable in place.
func IsFatalToStream(err *AgentError) bool {
	if err == nil {
		return false
	}
	fatalCodes := []string{
		ErrCodePermissionDenied,
		ErrCodeDeviceConfig,
		ErrCodeRotationFailed,
		ErrCodeConnectionTimeout,
	}
	for _, code := range fatalCodes {
		if err.Code == code {
			return true
		}
	}
	return false
}

// IsRetryableError reports whether a fresh start attempt may succeed.
func IsRetryableError(err *AgentError) bool {
	if err == nil {
		return false
	}
	retryableCodes := []string{
		ErrCodeConnectionFailed,
		ErrCodeConnectionTimeout,
		ErrCodeDeviceConfig,
	}
	for _, code := range retryableCodes {
		if err.Code == code {
			return true
		}
	}
	return false
}
