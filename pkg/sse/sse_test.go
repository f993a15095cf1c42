package sse_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/signal"
	"github.com/inquest-app/inquest/pkg/sse"
)

func TestWriterFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := sse.NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteFrame("response_chunk", demux.ResponseDelta{Delta: "hi"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("X-Accel-Buffering = %q", got)
	}
	body := rec.Body.String()
	want := "event: response_chunk\ndata: {\"delta\":\"hi\"}\n\n"
	if body != want {
		t.Fatalf("body = %q, want %q", body, want)
	}
	if !rec.Flushed {
		t.Fatal("frame was not flushed")
	}
}

func TestScanner(t *testing.T) {
	stream := "event: response_chunk\ndata: {\"delta\":\"a\"}\n\n" +
		": keep-alive\n\n" +
		"event: done\r\ndata: {\"message_id\":\"m1\",\"signals_count\":0}\r\n\r\n"

	s := sse.NewScanner(strings.NewReader(stream))

	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Name != "response_chunk" || string(f.Data) != `{"delta":"a"}` {
		t.Fatalf("frame = %+v", f)
	}

	f, err = s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Name != "done" {
		t.Fatalf("frame = %+v", f)
	}

	if _, err := s.Next(); err != io.EOF {
		t.Fatalf("Next at end = %v, want io.EOF", err)
	}
}

func TestScannerMultiLineData(t *testing.T) {
	stream := "event: error\ndata: {\"message\":\ndata: \"x\"}\n\n"
	s := sse.NewScanner(strings.NewReader(stream))
	f, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(f.Data) != "{\"message\":\n\"x\"}" {
		t.Fatalf("data = %q", f.Data)
	}
}

func TestScannerBrokenStream(t *testing.T) {
	// Stream dies mid-frame: that is not a clean EOF.
	s := sse.NewScanner(strings.NewReader("event: response_chunk\ndata: {\"delta\":"))
	if _, err := s.Next(); err != io.ErrUnexpectedEOF {
		t.Fatalf("Next = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestEncodeDecodeEvents(t *testing.T) {
	events := []demux.Event{
		demux.ResponseDelta{Delta: "a"},
		demux.ReflectionDelta{Delta: "b"},
		demux.SignalsReady{Signals: []signal.Signal{{ID: "s1", Type: "Claim", Text: "x"}}},
		demux.ActionHintsReady{Hints: []signal.ActionHint{{Label: "do it", Kind: "act"}}},
		demux.Done{MessageID: "m1", ReflectionID: "r1", SignalsCount: 1},
		demux.TurnError{Message: "boom"},
	}

	rec := httptest.NewRecorder()
	w, err := sse.NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, ev := range events {
		if err := sse.EncodeEvent(w, ev); err != nil {
			t.Fatalf("EncodeEvent(%T): %v", ev, err)
		}
	}

	s := sse.NewScanner(rec.Body)
	for i, want := range events {
		f, err := s.Next()
		if err != nil {
			t.Fatalf("Next[%d]: %v", i, err)
		}
		got, err := sse.DecodeFrame(f)
		if err != nil {
			t.Fatalf("DecodeFrame[%d]: %v", i, err)
		}
		switch w := want.(type) {
		case demux.Done:
			if got.(demux.Done) != w {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		case demux.SignalsReady:
			g := got.(demux.SignalsReady)
			if len(g.Signals) != 1 || g.Signals[0] != w.Signals[0] {
				t.Fatalf("event %d = %+v, want %+v", i, got, w)
			}
		}
	}
}

func TestDecodeUnknownFrame(t *testing.T) {
	_, err := sse.DecodeFrame(sse.Frame{Name: "heartbeat", Data: []byte("{}")})
	if !errors.Is(err, sse.ErrUnknownFrame) {
		t.Fatalf("err = %v, want ErrUnknownFrame", err)
	}
}
