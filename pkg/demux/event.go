package demux

import "github.com/inquest-app/inquest/pkg/signal"

// Event is the typed unit handed to the wire transport. It is a closed
// union: every event the demultiplexer or the turn engine can produce is
// one of the types below, and consumers dispatch with a type switch.
type Event interface {
	isEvent()
}

// ResponseDelta appends text to the user-facing response.
type ResponseDelta struct {
	Delta string `json:"delta"`
}

// ReflectionDelta appends text to the assistant's private reflection.
type ReflectionDelta struct {
	Delta string `json:"delta"`
}

// SignalsReady carries the complete, parsed signal list for the turn.
// Emitted at most once, and only after the section parsed successfully.
type SignalsReady struct {
	Signals []signal.Signal `json:"signals"`
}

// ActionHintsReady carries the complete, parsed action-hint list.
type ActionHintsReady struct {
	Hints []signal.ActionHint `json:"action_hints"`
}

// Done terminates a successful turn. Always the last event.
type Done struct {
	MessageID    string `json:"message_id"`
	ReflectionID string `json:"reflection_id,omitempty"`
	SignalsCount int    `json:"signals_count"`
}

// TurnError terminates a failed turn. Always the last event; never
// follows or precedes a Done for the same turn.
type TurnError struct {
	Message string `json:"message"`
}

func (ResponseDelta) isEvent()    {}
func (ReflectionDelta) isEvent()  {}
func (SignalsReady) isEvent()     {}
func (ActionHintsReady) isEvent() {}
func (Done) isEvent()             {}
func (TurnError) isEvent()        {}
