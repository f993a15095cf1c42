package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inquest-app/inquest/pkg/api"
	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/generate"
	"github.com/inquest-app/inquest/pkg/kv"
	"github.com/inquest-app/inquest/pkg/sse"
	"github.com/inquest-app/inquest/pkg/turn"
)

func newServer(t *testing.T, gen generate.Generator) *httptest.Server {
	t.Helper()
	st := kv.NewMemory()
	t.Cleanup(func() { st.Close() })
	h := api.NewHandler(&turn.Engine{Gen: gen, Store: st}, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestTurnEndpoint(t *testing.T) {
	gen := &generate.Script{Chunks: []string{
		"<response>Hel", "lo!</response>",
		`<signals>[{"type":"Claim","text":"works"}]</signals>`,
	}}
	srv := newServer(t, gen)

	resp, err := http.Post(srv.URL, "application/json",
		strings.NewReader(`{"text":"hi","context":{"mode":"general"}}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var text strings.Builder
	var sawSignals, sawDone bool
	s := sse.NewScanner(resp.Body)
	for {
		f, err := s.Next()
		if err != nil {
			break
		}
		ev, err := sse.DecodeFrame(f)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		switch e := ev.(type) {
		case demux.ResponseDelta:
			text.WriteString(e.Delta)
		case demux.SignalsReady:
			sawSignals = true
			if len(e.Signals) != 1 || e.Signals[0].ID == "" {
				t.Fatalf("signals = %+v", e.Signals)
			}
		case demux.Done:
			sawDone = true
			if e.MessageID == "" || e.SignalsCount != 1 {
				t.Fatalf("done = %+v", e)
			}
		}
	}
	if text.String() != "Hello!" {
		t.Fatalf("response text = %q", text.String())
	}
	if !sawSignals || !sawDone {
		t.Fatalf("sawSignals=%v sawDone=%v", sawSignals, sawDone)
	}
}

func TestTurnEndpointRejectsEmptyText(t *testing.T) {
	srv := newServer(t, &generate.Script{})

	for _, body := range []string{`{"text":""}`, `{"text":"   \n "}`, `not json`} {
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestTurnEndpointMethod(t *testing.T) {
	srv := newServer(t, &generate.Script{})
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
