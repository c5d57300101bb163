package chat

import "github.com/suPer8Hu/kel/internal/ai"

type EventKind string

const (
	KindTextDelta EventKind = "text-delta"
	KindFinish    EventKind = "finish"
	KindError     EventKind = "error"
)

// Event is what subscribers observe for a turn. A turn yields text-delta
// events followed by exactly one finish or error event.
type Event struct {
	ConversationID uint64    `json:"conversation_id"`
	TurnID         string    `json:"turn_id"`
	Kind           EventKind `json:"kind"`
	Text           string    `json:"text,omitempty"`
	FinishReason   string    `json:"finish_reason,omitempty"`
	Usage          *ai.Usage `json:"usage,omitempty"`
	MessageID      uint64    `json:"message_id,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// Terminal reports whether e ends its turn.
func (e Event) Terminal() bool {
	return e.Kind == KindFinish || e.Kind == KindError
}
