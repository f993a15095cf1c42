// Package client consumes the per-turn push channel and reconciles
// optimistic local state with server-confirmed identifiers.
//
// A Thread owns one conversation's view: its message list, the signal and
// hint collections, and the state machine for the in-flight turn
// (idle → sending → streaming → done|errored|aborted). Submitting a
// message inserts provisional records immediately; the assistant entry's
// temporary identity is swapped for the server-assigned one only when the
// done frame arrives.
//
// All view mutation happens on the turn's consume goroutine. Timers and
// the frame-reading loop are the only asynchronous wake-ups, and both
// resolve to state-machine transitions.
package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/signal"
)

// State is the turn state machine's current position.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateDone
	StateErrored
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Message is one entry in the conversation view. LocalID is the stable
// handle UI code keys off; ID is empty until the server confirms it.
type Message struct {
	LocalID string
	ID      string
	Role    string
	Text    string
}

// TurnView is the provisional record for the in-flight (or most recent)
// turn. Its LocalID matches the assistant Message's LocalID and survives
// the temporary-to-permanent id swap.
type TurnView struct {
	LocalID      string
	MessageID    string
	ReflectionID string
	Response     string
	Reflection   string
	SignalsCount int
	Streaming    bool
	Err          string
	Retryable    bool
}

// TurnRequest is what the transport sends to start a turn.
type TurnRequest struct {
	Text      string
	Mode      string
	CaseID    string
	InquiryID string
}

// Transport opens the push channel for one turn. Open must honor ctx for
// both connection setup and subsequent body reads, so cancellation
// closes the channel.
type Transport interface {
	Open(ctx context.Context, req TurnRequest) (io.ReadCloser, error)
}

// Timeout and failure messages surfaced on the view. The two timeout
// messages are deliberately distinct.
const (
	msgFirstTokenTimeout = "assistant did not start responding in time"
	msgTotalTimeout      = "assistant took too long to finish"
	msgCancelled         = "cancelled"
	msgConnectionLost    = "connection lost before the turn completed"
	msgBadFrame          = "malformed event from server"
)

// ErrEmptyInput means the submitted text was empty after trimming; no
// turn is started and no channel is opened.
var ErrEmptyInput = errors.New("client: empty input")

// ErrNotRetryable means Retry was called in a state other than errored.
var ErrNotRetryable = errors.New("client: nothing to retry")

// Options configures a Thread.
type Options struct {
	// FirstEventTimeout aborts the turn if no frame of any kind arrives
	// in time. Detects a dead connection or unresponsive backend.
	// Default 15s.
	FirstEventTimeout time.Duration

	// TotalTimeout aborts the turn regardless of progress. The first
	// frame cancels only the first-event timer, never this one.
	// Default 2m.
	TotalTimeout time.Duration

	Mode      string
	CaseID    string
	InquiryID string

	// OnEvent, if set, is called from the consume goroutine after each
	// applied event. For rendering; must not call back into the Thread.
	OnEvent func(demux.Event)
}

// Thread is the consumption state machine for one conversation. At most
// one push channel is active at a time; sending while one is open aborts
// it first.
type Thread struct {
	transport Transport
	opts      Options

	mu       sync.Mutex
	state    State
	msgs     []*Message
	view     *TurnView
	signals  []signal.Signal
	seen     map[string]bool
	hints    []signal.ActionHint
	lastText string
	lastUser *Message

	cancel context.CancelFunc
	turnMu sync.Mutex // serializes Send/Abort/Retry
	doneCh chan struct{}
}

// NewThread creates a Thread over the given transport.
func NewThread(t Transport, opts Options) *Thread {
	if opts.FirstEventTimeout <= 0 {
		opts.FirstEventTimeout = 15 * time.Second
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = 2 * time.Minute
	}
	return &Thread{
		transport: t,
		opts:      opts,
		state:     StateIdle,
		seen:      make(map[string]bool),
	}
}

// Send submits a user message: the provisional user and assistant records
// are inserted immediately and the push channel is opened. If a previous
// turn's channel is still active it is aborted first.
func (t *Thread) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	t.turnMu.Lock()
	defer t.turnMu.Unlock()
	t.stopCurrent()

	t.mu.Lock()
	user := &Message{LocalID: localID(), Role: "user", Text: text}
	asst := &Message{LocalID: localID(), Role: "assistant"}
	t.msgs = append(t.msgs, user, asst)
	t.view = &TurnView{LocalID: asst.LocalID, Streaming: true}
	t.hints = nil // hints belong to one turn
	t.state = StateSending
	t.lastText = text
	t.lastUser = user

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	done := make(chan struct{})
	t.doneCh = done
	view, msg := t.view, asst
	t.mu.Unlock()

	req := TurnRequest{
		Text:      text,
		Mode:      t.opts.Mode,
		CaseID:    t.opts.CaseID,
		InquiryID: t.opts.InquiryID,
	}
	go t.consume(ctx, req, view, msg, done)
	return nil
}

// Retry re-sends the text of the errored turn with a fresh temporary id
// pair. Only valid in the errored state.
func (t *Thread) Retry() error {
	t.mu.Lock()
	if t.state != StateErrored {
		t.mu.Unlock()
		return ErrNotRetryable
	}
	text := t.lastText
	// The failed attempt's user entry is superseded by the retry's.
	t.removeLocked(t.lastUser)
	t.mu.Unlock()
	return t.Send(text)
}

// Abort cancels the in-flight turn, if any: consumption stops, the
// channel closes, and already-rendered partial content stays visible but
// is not retryable in place.
func (t *Thread) Abort() {
	t.turnMu.Lock()
	defer t.turnMu.Unlock()
	t.stopCurrent()
}

// stopCurrent cancels the active turn and waits for its consume loop to
// finish. Callers hold turnMu.
func (t *Thread) stopCurrent() {
	t.mu.Lock()
	cancel, done := t.cancel, t.doneCh
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Wait blocks until the current turn reaches a terminal state. Returns
// immediately when no turn is active.
func (t *Thread) Wait() {
	t.mu.Lock()
	done := t.doneCh
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the current state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// View returns a snapshot of the current turn view. The zero view is
// returned before the first send.
func (t *Thread) View() TurnView {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.view == nil {
		return TurnView{}
	}
	return *t.view
}

// Messages returns a snapshot of the conversation list.
func (t *Thread) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

// Signals returns the accumulated, deduplicated signal collection.
func (t *Thread) Signals() []signal.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]signal.Signal(nil), t.signals...)
}

// Hints returns the current turn's action hints. Hints are per-turn
// ephemeral; a new send clears them.
func (t *Thread) Hints() []signal.ActionHint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]signal.ActionHint(nil), t.hints...)
}

func (t *Thread) removeLocked(msg *Message) {
	for i, m := range t.msgs {
		if m == msg {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

func localID() string {
	var b [8]byte
	rand.Read(b[:])
	return "local-" + hex.EncodeToString(b[:])
}
