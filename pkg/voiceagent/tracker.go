package voiceagent

import "sync"

// ConversationTracker accumulates the transcript of one conversation: what
// the user said and what the agent answered, in arrival order. It is a
// convenience for UI consumers; the core pipeline works without it.
type ConversationTracker struct {
	mu          sync.Mutex
	transcripts []string
	responses   []string
}

func NewConversationTracker() *ConversationTracker {
	return &ConversationTracker{}
}

func (ct *ConversationTracker) AddTranscript(text string) {
	if text == "" {
		return
	}
	ct.mu.Lock()
	ct.transcripts = append(ct.transcripts, text)
	ct.mu.Unlock()
}

func (ct *ConversationTracker) AddResponse(text string) {
	if text == "" {
		return
	}
	ct.mu.Lock()
	ct.responses = append(ct.responses, text)
	ct.mu.Unlock()
}

// History returns copies of the accumulated transcripts and responses.
func (ct *ConversationTracker) History() (transcripts, responses []string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	transcripts = append([]string(nil), ct.transcripts...)
	responses = append([]string(nil), ct.responses...)
	return transcripts, responses
}

func (ct *ConversationTracker) Clear() {
	ct.mu.Lock()
	ct.transcripts = nil
	ct.responses = nil
	ct.mu.Unlock()
}
