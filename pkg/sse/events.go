package sse

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inquest-app/inquest/pkg/demux"
)

// Frame names, one per typed output event.
const (
	FrameResponseChunk   = "response_chunk"
	FrameReflectionChunk = "reflection_chunk"
	FrameSignals         = "signals"
	FrameActionHints     = "action_hints"
	FrameDone            = "done"
	FrameError           = "error"
)

// ErrUnknownFrame is returned by DecodeFrame for frame names outside the
// vocabulary. Clients skip such frames instead of failing the turn.
var ErrUnknownFrame = errors.New("sse: unknown frame name")

// EncodeEvent writes one typed output event as its wire frame.
func EncodeEvent(w *Writer, ev demux.Event) error {
	switch e := ev.(type) {
	case demux.ResponseDelta:
		return w.WriteFrame(FrameResponseChunk, e)
	case demux.ReflectionDelta:
		return w.WriteFrame(FrameReflectionChunk, e)
	case demux.SignalsReady:
		return w.WriteFrame(FrameSignals, e)
	case demux.ActionHintsReady:
		return w.WriteFrame(FrameActionHints, e)
	case demux.Done:
		return w.WriteFrame(FrameDone, e)
	case demux.TurnError:
		return w.WriteFrame(FrameError, e)
	default:
		return fmt.Errorf("sse: unencodable event %T", ev)
	}
}

// DecodeFrame parses a wire frame back into its typed output event.
func DecodeFrame(f Frame) (demux.Event, error) {
	switch f.Name {
	case FrameResponseChunk:
		var e demux.ResponseDelta
		return e, decode(f, &e)
	case FrameReflectionChunk:
		var e demux.ReflectionDelta
		return e, decode(f, &e)
	case FrameSignals:
		var e demux.SignalsReady
		return e, decode(f, &e)
	case FrameActionHints:
		var e demux.ActionHintsReady
		return e, decode(f, &e)
	case FrameDone:
		var e demux.Done
		return e, decode(f, &e)
	case FrameError:
		var e demux.TurnError
		return e, decode(f, &e)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, f.Name)
	}
}

func decode(f Frame, v any) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("sse: decode %s frame: %w", f.Name, err)
	}
	return nil
}
