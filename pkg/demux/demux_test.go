package demux_test

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/signal"
)

// collect feeds the whole input as one chunk and returns all events
// including those produced by Finish.
func collect(t *testing.T, input string) []demux.Event {
	t.Helper()
	d := demux.New(nil)
	events := d.Feed(input)
	return append(events, d.Finish()...)
}

// collectSplit feeds the input in chunks of the given size.
func collectSplit(t *testing.T, input string, size int) []demux.Event {
	t.Helper()
	d := demux.New(nil)
	var events []demux.Event
	for i := 0; i < len(input); i += size {
		end := i + size
		if end > len(input) {
			end = len(input)
		}
		events = append(events, d.Feed(input[i:end])...)
	}
	return append(events, d.Finish()...)
}

// joinText concatenates deltas per streamed section and gathers ready
// events, so event sequences with different chunking can be compared.
type turnOutput struct {
	Response   string
	Reflection string
	Signals    [][]signal.Signal
	Hints      [][]signal.ActionHint
}

func summarize(events []demux.Event) turnOutput {
	var out turnOutput
	for _, ev := range events {
		switch e := ev.(type) {
		case demux.ResponseDelta:
			out.Response += e.Delta
		case demux.ReflectionDelta:
			out.Reflection += e.Delta
		case demux.SignalsReady:
			out.Signals = append(out.Signals, e.Signals)
		case demux.ActionHintsReady:
			out.Hints = append(out.Hints, e.Hints)
		}
	}
	return out
}

const fullStream = `<response>Hello there. Let me walk through it.</response>
<reflection>The user seems unsure about scope.</reflection>
<signals>[{"type":"Assumption","text":"Scope is fixed"},{"type":"Question","text":"Who owns the decision?"}]</signals>
<action_hints>[{"label":"Break down the scope","kind":"explore"}]</action_hints>`

func TestSingleChunk(t *testing.T) {
	out := summarize(collect(t, fullStream))

	if out.Response != "Hello there. Let me walk through it." {
		t.Fatalf("response = %q", out.Response)
	}
	if out.Reflection != "The user seems unsure about scope." {
		t.Fatalf("reflection = %q", out.Reflection)
	}
	if len(out.Signals) != 1 || len(out.Signals[0]) != 2 {
		t.Fatalf("signals = %+v", out.Signals)
	}
	if out.Signals[0][0].Type != "Assumption" || out.Signals[0][1].Text != "Who owns the decision?" {
		t.Fatalf("signals = %+v", out.Signals[0])
	}
	if len(out.Hints) != 1 || len(out.Hints[0]) != 1 || out.Hints[0][0].Label != "Break down the scope" {
		t.Fatalf("hints = %+v", out.Hints)
	}
}

func TestChunkBoundaryInvariance(t *testing.T) {
	want := summarize(collect(t, fullStream))
	for size := 1; size <= len(fullStream); size++ {
		got := summarize(collectSplit(t, fullStream, size))
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("chunk size %d: %+v != %+v", size, got, want)
		}
	}
}

// Every split point of a two-chunk partition, so markers land on every
// possible boundary at least once.
func TestEverySplitOffset(t *testing.T) {
	want := summarize(collect(t, fullStream))
	for cut := 0; cut <= len(fullStream); cut++ {
		d := demux.New(nil)
		events := d.Feed(fullStream[:cut])
		events = append(events, d.Feed(fullStream[cut:])...)
		events = append(events, d.Finish()...)
		if got := summarize(events); !reflect.DeepEqual(got, want) {
			t.Fatalf("split at %d: %+v != %+v", cut, got, want)
		}
	}
}

func TestDeltasNeverContainMarkers(t *testing.T) {
	for size := 1; size < 20; size++ {
		for _, ev := range collectSplit(t, fullStream, size) {
			var delta string
			switch e := ev.(type) {
			case demux.ResponseDelta:
				delta = e.Delta
			case demux.ReflectionDelta:
				delta = e.Delta
			default:
				continue
			}
			if strings.Contains(delta, "<response>") || strings.Contains(delta, "</response>") ||
				strings.Contains(delta, "<reflection>") || strings.Contains(delta, "</reflection>") {
				t.Fatalf("size %d: delta %q leaks marker text", size, delta)
			}
		}
	}
}

func TestMultiByteRunesNeverSplitAcrossDeltas(t *testing.T) {
	// Each delta is JSON-encoded independently on the wire, so a rune
	// split across two deltas would arrive as U+FFFD pairs. Mixed 2-,
	// 3- and 4-byte runes, fed at every chunk size.
	const input = "<response>café — 你好, naïve 🜁 fin</response><reflection>résumé 日本語</reflection>"
	const wantResponse = "café — 你好, naïve 🜁 fin"
	const wantReflection = "résumé 日本語"

	for size := 1; size <= len(input); size++ {
		events := collectSplit(t, input, size)
		out := summarize(events)
		if out.Response != wantResponse || out.Reflection != wantReflection {
			t.Fatalf("size %d: reconstructed %+v", size, out)
		}
		for _, ev := range events {
			var delta string
			switch e := ev.(type) {
			case demux.ResponseDelta:
				delta = e.Delta
			case demux.ReflectionDelta:
				delta = e.Delta
			default:
				continue
			}
			if !utf8.ValidString(delta) {
				t.Fatalf("size %d: delta %q ends mid-rune", size, delta)
			}
		}
	}
}

func TestPreambleDiscarded(t *testing.T) {
	out := summarize(collect(t, "Sure, here you go:\n<response>Hi</response>"))
	if out.Response != "Hi" {
		t.Fatalf("response = %q, want %q", out.Response, "Hi")
	}
}

func TestImplicitCloseOnStreamEnd(t *testing.T) {
	// No closing marker: stream ends mid-response.
	out := summarize(collect(t, "<response>Hello"))
	if out.Response != "Hello" {
		t.Fatalf("response = %q, want %q", out.Response, "Hello")
	}

	// Buffered section closed implicitly still parses.
	out = summarize(collect(t, `<signals>[{"type":"Claim","text":"x"}]`))
	if len(out.Signals) != 1 || len(out.Signals[0]) != 1 {
		t.Fatalf("signals = %+v", out.Signals)
	}
}

func TestMalformedSignalsDropped(t *testing.T) {
	input := `<response>ok</response><signals>this is not a list</signals><reflection>r</reflection>`
	out := summarize(collect(t, input))
	if len(out.Signals) != 0 {
		t.Fatalf("malformed signals must not produce a ready event: %+v", out.Signals)
	}
	if out.Response != "ok" || out.Reflection != "r" {
		t.Fatalf("free text must survive a malformed section: %+v", out)
	}
}

func TestRepairableSignalsAccepted(t *testing.T) {
	// Trailing comma: invalid JSON that jsonrepair can fix.
	input := `<signals>[{"type":"Assumption","text":"x"},]</signals>`
	out := summarize(collect(t, input))
	if len(out.Signals) != 1 || len(out.Signals[0]) != 1 {
		t.Fatalf("signals = %+v", out.Signals)
	}
}

func TestWrappedSignalsAccepted(t *testing.T) {
	input := `<signals>{"signals":[{"type":"Claim","text":"y"}]}</signals>`
	out := summarize(collect(t, input))
	if len(out.Signals) != 1 || out.Signals[0][0].Text != "y" {
		t.Fatalf("signals = %+v", out.Signals)
	}
}

func TestMarkerTextInsideBufferedContent(t *testing.T) {
	// A start marker literal inside buffered JSON must not open a section.
	input := `<signals>[{"type":"Claim","text":"the <response> tag is special"}]</signals><response>after</response>`
	out := summarize(collect(t, input))
	if len(out.Signals) != 1 {
		t.Fatalf("signals = %+v", out.Signals)
	}
	if out.Signals[0][0].Text != "the <response> tag is special" {
		t.Fatalf("signal text = %q", out.Signals[0][0].Text)
	}
	if out.Response != "after" {
		t.Fatalf("response = %q", out.Response)
	}
}

func TestAngleBracketsInStreamedContent(t *testing.T) {
	input := "<response>a < b and x <resp is fine</response>"
	want := "a < b and x <resp is fine"
	for size := 1; size <= len(input); size++ {
		out := summarize(collectSplit(t, input, size))
		if out.Response != want {
			t.Fatalf("size %d: response = %q, want %q", size, out.Response, want)
		}
	}
}

func TestEmptySections(t *testing.T) {
	out := summarize(collect(t, "<response></response><signals>[]</signals>"))
	if out.Response != "" {
		t.Fatalf("response = %q", out.Response)
	}
	if len(out.Signals) != 1 || len(out.Signals[0]) != 0 {
		t.Fatalf("empty list should still emit one ready event: %+v", out.Signals)
	}
}

func TestRecordsWithEmptyFieldsSkipped(t *testing.T) {
	input := `<signals>[{"type":"","text":"x"},{"type":"Claim","text":"  "},{"type":"Claim","text":"kept"}]</signals>`
	out := summarize(collect(t, input))
	if len(out.Signals) != 1 || len(out.Signals[0]) != 1 || out.Signals[0][0].Text != "kept" {
		t.Fatalf("signals = %+v", out.Signals)
	}
}

func BenchmarkFeedSmallChunks(b *testing.B) {
	for i := 0; i < b.N; i++ {
		d := demux.New(nil)
		for j := 0; j < len(fullStream); j += 7 {
			end := j + 7
			if end > len(fullStream) {
				end = len(fullStream)
			}
			d.Feed(fullStream[j:end])
		}
		d.Finish()
	}
}

func ExampleDemux() {
	d := demux.New(nil)
	events := d.Feed("<response>Hi!</response>")
	events = append(events, d.Finish()...)
	for _, ev := range events {
		if delta, ok := ev.(demux.ResponseDelta); ok {
			fmt.Print(delta.Delta)
		}
	}
	// Output: Hi!
}
