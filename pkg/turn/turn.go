// Package turn drives one conversational turn end to end: it decides
// whether to request signal extraction, assembles the generation request,
// demultiplexes the generated token stream into typed events, forwards
// them to the transport, and persists the completed outputs.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/generate"
	"github.com/inquest-app/inquest/pkg/kv"
	"github.com/inquest-app/inquest/pkg/signal"
	"github.com/inquest-app/inquest/pkg/store"
	"github.com/inquest-app/inquest/pkg/trigger"
)

// Request is the immutable input to one generation cycle.
type Request struct {
	ConvID    string
	Text      string
	Mode      string
	CaseID    string
	InquiryID string
}

// Defaults for engine limits.
const (
	DefaultHistoryWindow   = 12
	DefaultSignalWindow    = 8
	DefaultMaxOutputTokens = 2048
	DefaultMaxOutputBytes  = 256 << 10
)

// Engine coordinates turns. One engine serves many conversations; each
// Run call is independent and turns across conversations execute fully
// concurrently. Within a turn everything is sequential.
type Engine struct {
	Gen   generate.Generator
	Store kv.Store

	// Embeds receives embedding jobs for newly persisted signals.
	// Optional.
	Embeds *signal.EmbedQueue

	// HistoryWindow bounds the prior messages included in the request.
	HistoryWindow int

	// SignalWindow bounds the prior unconsumed signals included.
	SignalWindow int

	// MaxOutputTokens is passed to the generator.
	MaxOutputTokens int

	// MaxOutputBytes aborts the turn if the raw stream exceeds it, as a
	// backstop for providers that ignore the token limit.
	MaxOutputBytes int

	Log *slog.Logger
}

// publicError pairs an internal error with the message allowed to cross
// the wire. Internal detail stays in the logs.
type publicError struct {
	public string
	err    error
}

func (e *publicError) Error() string { return fmt.Sprintf("%s: %v", e.public, e.err) }
func (e *publicError) Unwrap() error { return e.err }

func fail(public string, err error) *publicError {
	return &publicError{public: public, err: err}
}

// Run executes one turn, forwarding every typed output event to emit in
// order. Exactly one Done or TurnError event is emitted, always last. An
// emit failure means the transport is gone; the turn stops quietly.
func (e *Engine) Run(ctx context.Context, req Request, emit func(demux.Event) error) {
	log := e.log().With("conv", req.ConvID, "mode", req.Mode)

	done, err := e.run(ctx, req, emit, log)
	if err != nil {
		var pub *publicError
		msg := "turn failed"
		if errors.As(err, &pub) {
			msg = pub.public
		}
		log.Error("turn failed", "error", err)
		if eerr := emit(demux.TurnError{Message: msg}); eerr != nil {
			log.Warn("could not deliver turn error", "error", eerr)
		}
		return
	}
	if eerr := emit(done); eerr != nil {
		log.Warn("could not deliver turn completion", "error", eerr)
		return
	}
	log.Info("turn done",
		"message", done.MessageID,
		"reflection", done.ReflectionID,
		"signals", done.SignalsCount)
}

func (e *Engine) run(ctx context.Context, req Request, emit func(demux.Event) error, log *slog.Logger) (demux.Done, error) {
	conv := store.Open(e.Store, req.ConvID)

	state, err := conv.TriggerState(ctx)
	if err != nil {
		// Bookkeeping is advisory; a fresh state only means extraction
		// fires more eagerly than planned.
		log.Warn("trigger state unavailable", "error", err)
		state = trigger.State{}
	}
	extract := trigger.ShouldExtract(state, req.Text)

	history, err := conv.RecentMessages(ctx, e.historyWindow())
	if err != nil {
		log.Warn("history unavailable", "error", err)
	}

	var pending []signal.Signal
	if extract {
		if pending, err = conv.UnconsumedSignals(ctx, e.signalWindow()); err != nil {
			log.Warn("pending signals unavailable", "error", err)
		}
	}

	if _, err := conv.SaveMessage(ctx, store.RoleUser, req.Text); err != nil {
		return demux.Done{}, fail("could not save your message", err)
	}

	genReq := generate.Request{
		Instructions: Instructions(req.Mode, extract, pending),
		Messages:     contextWindow(history, req.Text),
		MaxTokens:    e.maxOutputTokens(),
	}
	stream, err := e.Gen.GenerateStream(ctx, genReq)
	if err != nil {
		return demux.Done{}, fail("generation failed", err)
	}
	defer stream.Close()

	log.Info("turn started", "extract", extract, "history", len(history), "pending_signals", len(pending))

	d := demux.New(log)
	st := &turnState{conv: conv, log: log}

	total := 0
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return demux.Done{}, fail("generation failed", err)
		}
		total += len(chunk)
		if max := e.maxOutputBytes(); total > max {
			return demux.Done{}, fail("response exceeded size budget",
				fmt.Errorf("turn: output over %d bytes", max))
		}
		// Streamed deltas are forwarded with no added buffering; the
		// transport flushes each one.
		if err := e.forward(ctx, d.Feed(chunk), st, emit); err != nil {
			return demux.Done{}, err
		}
	}
	if err := e.forward(ctx, d.Finish(), st, emit); err != nil {
		return demux.Done{}, err
	}

	msgID, err := conv.SaveMessage(ctx, store.RoleAssistant, st.response.String())
	if err != nil {
		// Without a permanent id the turn cannot report success, even
		// though generation itself finished.
		return demux.Done{}, fail("could not save the reply", err)
	}

	var reflID string
	if st.reflection.Len() > 0 {
		if reflID, err = conv.SaveReflection(ctx, st.reflection.String()); err != nil {
			log.Warn("reflection not persisted", "error", err)
			reflID = ""
		}
	}

	if len(pending) > 0 {
		ids := make([]string, len(pending))
		for i, s := range pending {
			ids[i] = s.ID
		}
		if err := conv.MarkSignalsConsumed(ctx, ids); err != nil {
			log.Warn("could not mark signals consumed", "error", err)
		}
	}

	if err := conv.SaveTriggerState(ctx, trigger.Advance(state, req.Text, extract)); err != nil {
		log.Warn("could not save trigger state", "error", err)
	}

	return demux.Done{
		MessageID:    msgID,
		ReflectionID: reflID,
		SignalsCount: st.accepted,
	}, nil
}

// turnState accumulates per-turn output while events pass through.
type turnState struct {
	conv       *store.Conv
	log        *slog.Logger
	response   strings.Builder
	reflection strings.Builder
	accepted   int
}

// forward applies side effects for each event and pushes it to the
// transport.
func (e *Engine) forward(ctx context.Context, events []demux.Event, st *turnState, emit func(demux.Event) error) error {
	for _, ev := range events {
		switch t := ev.(type) {
		case demux.ResponseDelta:
			st.response.WriteString(t.Delta)
		case demux.ReflectionDelta:
			st.reflection.WriteString(t.Delta)
		case demux.SignalsReady:
			ev = e.acceptSignals(ctx, t, st)
		}
		if err := emit(ev); err != nil {
			return fail("client went away", err)
		}
	}
	return nil
}

// acceptSignals deduplicates extracted signals by content fingerprint,
// persists the new ones, schedules their embeddings, and rewrites the
// event so the wire carries permanent ids.
func (e *Engine) acceptSignals(ctx context.Context, ev demux.SignalsReady, st *turnState) demux.Event {
	out := make([]signal.Signal, 0, len(ev.Signals))
	for _, s := range ev.Signals {
		id, isNew, err := st.conv.UpsertSignal(ctx, s.Type, s.Text)
		if err != nil {
			st.log.Warn("signal not persisted", "type", s.Type, "error", err)
			continue
		}
		if isNew {
			st.accepted++
			if e.Embeds != nil {
				e.Embeds.Submit(id, s.Text)
			}
		}
		s.ID = id
		out = append(out, s)
	}
	return demux.SignalsReady{Signals: out}
}

func contextWindow(history []store.Message, userText string) []generate.Message {
	msgs := make([]generate.Message, 0, len(history)+1)
	for _, m := range history {
		role := generate.RoleUser
		if m.Role == store.RoleAssistant {
			role = generate.RoleAssistant
		}
		msgs = append(msgs, generate.Message{Role: role, Text: m.Text})
	}
	return append(msgs, generate.Message{Role: generate.RoleUser, Text: userText})
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) historyWindow() int {
	if e.HistoryWindow > 0 {
		return e.HistoryWindow
	}
	return DefaultHistoryWindow
}

func (e *Engine) signalWindow() int {
	if e.SignalWindow > 0 {
		return e.SignalWindow
	}
	return DefaultSignalWindow
}

func (e *Engine) maxOutputTokens() int {
	if e.MaxOutputTokens > 0 {
		return e.MaxOutputTokens
	}
	return DefaultMaxOutputTokens
}

func (e *Engine) maxOutputBytes() int {
	if e.MaxOutputBytes > 0 {
		return e.MaxOutputBytes
	}
	return DefaultMaxOutputBytes
}
