package voiceagent

import (
	"encoding/json"
	"sync"
)

// Inbound wire frames, discriminated by the type field. Unknown types are
// logged and ignored so protocol additions never crash the client.

type inboundFrame struct {
	Type string `json:"type"`

	ConversationInitiationMetadataEvent *conversationMetadataEvent `json:"conversation_initiation_metadata_event,omitempty"`
	PingEvent                           *pingEvent                 `json:"ping_event,omitempty"`
	AudioEvent                          *audioEvent                `json:"audio_event,omitempty"`
	AgentResponseEvent                  *agentResponseEvent        `json:"agent_response_event,omitempty"`
	UserTranscriptionEvent              *userTranscriptionEvent    `json:"user_transcription_event,omitempty"`
}

type conversationMetadataEvent struct {
	ConversationID string `json:"conversation_id"`
}

type pingEvent struct {
	EventID int `json:"event_id"`
}

type audioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
}

type agentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

type userTranscriptionEvent struct {
	UserTranscript string `json:"user_transcript"`
}

// frameSender is the slice of the connection the router needs to reply with
// control frames.
type frameSender interface {
	Send(data []byte) error
}

// Router parses inbound frames and dispatches them by discriminant. A parse
// failure is logged and the frame dropped; dispatch never stops the pump.
type Router struct {
	sender   frameSender
	receiver *AudioReceiver
	encoder  *Encoder
	emitter  *Emitter
	tracker  *ConversationTracker
	log      *Logger

	mu             sync.Mutex
	conversationID string
}

func NewRouter(sender frameSender, receiver *AudioReceiver, encoder *Encoder, emitter *Emitter, tracker *ConversationTracker, log *Logger) *Router {
	return &Router{
		sender:   sender,
		receiver: receiver,
		encoder:  encoder,
		emitter:  emitter,
		tracker:  tracker,
		log:      orNop(log).WithComponent("router"),
	}
}

// Dispatch routes one raw frame. It is called by the connection's pump, one
// frame at a time in arrival order.
func (r *Router) Dispatch(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.LogAgentError(WrapError(err, ErrCodeFrameParse).AddDetail("bytes", len(raw)))
		return
	}

	switch frame.Type {
	case "conversation_initiation_metadata":
		if frame.ConversationInitiationMetadataEvent == nil {
			r.log.Warn("conversation metadata frame missing event body")
			return
		}
		id := frame.ConversationInitiationMetadataEvent.ConversationID
		r.mu.Lock()
		r.conversationID = id
		r.mu.Unlock()
		r.log.WithField("conversation_id", id).Info("conversation initialized")
		r.emitter.Publish(EventConversationInitialized, id)

	case "ping":
		if frame.PingEvent == nil {
			r.log.Warn("ping frame missing event body")
			return
		}
		r.sendPong(frame.PingEvent.EventID)

	case "audio":
		if frame.AudioEvent == nil || frame.AudioEvent.AudioBase64 == "" {
			r.log.Warn("audio frame missing payload")
			return
		}
		// Fire-and-forget: sequencer latency must not stall the pump.
		r.receiver.HandleAudioResponse(frame.AudioEvent.AudioBase64)

	case "agent_response":
		if frame.AgentResponseEvent == nil {
			r.log.Warn("agent response frame missing event body")
			return
		}
		text := frame.AgentResponseEvent.AgentResponse
		if r.tracker != nil {
			r.tracker.AddResponse(text)
		}
		r.emitter.Publish(EventAgentResponse, text)

	case "user_transcript":
		if frame.UserTranscriptionEvent == nil {
			r.log.Warn("user transcript frame missing event body")
			return
		}
		text := frame.UserTranscriptionEvent.UserTranscript
		if r.tracker != nil {
			r.tracker.AddTranscript(text)
		}
		r.emitter.Publish(EventUserTranscript, text)

	default:
		r.log.WithField("type", frame.Type).Debug("ignoring unknown frame type")
	}
}

func (r *Router) sendPong(eventID int) {
	data, err := r.encoder.EncodePong(eventID)
	if err != nil {
		r.log.WithError(err).Error("failed to encode pong")
		return
	}
	if err := r.sender.Send(data); err != nil {
		r.log.WithError(err).WithField("event_id", eventID).Warn("failed to send pong")
		return
	}
	r.log.WithField("event_id", eventID).Debug("sent pong")
}

// ConversationID returns the identifier assigned by the service at session
// start, empty until the metadata frame arrives.
func (r *Router) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversationID
}
