package client

import (
	"context"
	"errors"
	"time"

	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/signal"
	"github.com/inquest-app/inquest/pkg/sse"
)

type frameOrErr struct {
	frame sse.Frame
	err   error
}

// consume is the single goroutine that owns mutation for one turn. It
// reads frames off its own channel so the timers can preempt a stalled
// read, and exits on the first terminal transition.
func (t *Thread) consume(ctx context.Context, req TurnRequest, view *TurnView, asst *Message, done chan struct{}) {
	defer close(done)
	defer t.clearTurn()

	firstTimer := time.NewTimer(t.opts.FirstEventTimeout)
	defer firstTimer.Stop()
	totalTimer := time.NewTimer(t.opts.TotalTimeout)
	defer totalTimer.Stop()

	frames := make(chan frameOrErr)
	go t.readFrames(ctx, req, frames)

	firstSeen := false
	for {
		select {
		case fe := <-frames:
			if fe.err != nil {
				if ctx.Err() != nil {
					// Cancellation surfaces as a read error too; don't
					// report it as a broken connection.
					t.abortTurn(view, msgCancelled)
					return
				}
				// The server always ends a healthy turn with a done or
				// error frame, so hitting the transport's end first
				// means the turn was cut off.
				t.fail(view, asst, msgConnectionLost)
				return
			}
			if !firstSeen {
				firstSeen = true
				firstTimer.Stop()
				t.setState(StateStreaming)
			}
			ev, err := sse.DecodeFrame(fe.frame)
			if errors.Is(err, sse.ErrUnknownFrame) {
				continue
			}
			if err != nil {
				t.fail(view, asst, msgBadFrame)
				return
			}
			if t.apply(ev, view, asst) {
				return
			}

		case <-firstTimer.C:
			if firstSeen {
				continue
			}
			t.abortTurn(view, msgFirstTokenTimeout)
			return

		case <-totalTimer.C:
			// With zero frames seen the more specific diagnosis wins,
			// even if both timers expired in the same tick.
			if !firstSeen {
				t.abortTurn(view, msgFirstTokenTimeout)
			} else {
				t.abortTurn(view, msgTotalTimeout)
			}
			return

		case <-ctx.Done():
			t.abortTurn(view, msgCancelled)
			return
		}
	}
}

// readFrames opens the channel and pumps frames until the stream or the
// turn context ends. Cancelling ctx aborts the underlying body read, so
// this goroutine never outlives the turn.
func (t *Thread) readFrames(ctx context.Context, req TurnRequest, out chan<- frameOrErr) {
	body, err := t.transport.Open(ctx, req)
	if err != nil {
		select {
		case out <- frameOrErr{err: err}:
		case <-ctx.Done():
		}
		return
	}
	defer body.Close()

	sc := sse.NewScanner(body)
	for {
		f, err := sc.Next()
		select {
		case out <- frameOrErr{frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// apply folds one decoded event into the view. Returns true when the
// event is terminal.
func (t *Thread) apply(ev demux.Event, view *TurnView, asst *Message) (terminal bool) {
	t.mu.Lock()
	switch e := ev.(type) {
	case demux.ResponseDelta:
		view.Response += e.Delta
		asst.Text += e.Delta

	case demux.ReflectionDelta:
		view.Reflection += e.Delta

	case demux.SignalsReady:
		// The whole batch lands under one lock, so readers never see a
		// partially applied set. Ids already shown are skipped.
		for _, s := range e.Signals {
			if s.ID != "" && t.seen[s.ID] {
				continue
			}
			t.seen[s.ID] = true
			t.signals = append(t.signals, s)
		}

	case demux.ActionHintsReady:
		// Hints are per-turn ephemeral, unlike signals: each turn's
		// batch replaces the previous one instead of accumulating.
		t.hints = append([]signal.ActionHint(nil), e.Hints...)

	case demux.Done:
		asst.ID = e.MessageID
		view.MessageID = e.MessageID
		view.ReflectionID = e.ReflectionID
		view.SignalsCount = e.SignalsCount
		view.Streaming = false
		t.state = StateDone
		terminal = true

	case demux.TurnError:
		t.removeLocked(asst)
		view.Streaming = false
		view.Err = e.Message
		view.Retryable = true
		t.state = StateErrored
		terminal = true
	}
	t.mu.Unlock()

	if t.opts.OnEvent != nil {
		t.opts.OnEvent(ev)
	}
	return terminal
}

// fail handles a channel-level failure (broken connection, undecodable
// frame): the assistant placeholder is dropped, the user text stays, and
// the turn is retryable.
func (t *Thread) fail(view *TurnView, asst *Message, msg string) {
	t.mu.Lock()
	if t.terminalLocked() {
		t.mu.Unlock()
		return
	}
	t.removeLocked(asst)
	view.Streaming = false
	view.Err = msg
	view.Retryable = true
	t.state = StateErrored
	t.mu.Unlock()
}

// abortTurn handles cancellation and timeouts: partial content stays in
// the list but the turn is not retryable in place.
func (t *Thread) abortTurn(view *TurnView, msg string) {
	t.mu.Lock()
	if t.terminalLocked() {
		t.mu.Unlock()
		return
	}
	view.Streaming = false
	view.Err = msg
	view.Retryable = false
	t.state = StateAborted
	t.mu.Unlock()
}

func (t *Thread) terminalLocked() bool {
	switch t.state {
	case StateDone, StateErrored, StateAborted:
		return true
	}
	return false
}

func (t *Thread) setState(s State) {
	t.mu.Lock()
	if !t.terminalLocked() {
		t.state = s
	}
	t.mu.Unlock()
}

// clearTurn releases the turn's cancel handle so a finished turn is not
// mistaken for an active one.
func (t *Thread) clearTurn() {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()
}
