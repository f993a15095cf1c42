// Package demux splits the assistant's single generated token stream into
// typed section events. The generator multiplexes four sections onto one
// stream with inline markers: response and reflection are free text and
// stream out as deltas; signals and action_hints are structured lists that
// are buffered until their end marker and parsed before anything is
// emitted.
//
// Demux is a plain synchronous state object. Feed it chunks of any size,
// in order, from one goroutine; it is not safe for concurrent use.
package demux

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Section identifies one of the four multiplexed regions.
type Section int

const (
	SectionNone Section = iota
	SectionResponse
	SectionReflection
	SectionSignals
	SectionActionHints
)

// String returns the section's wire name.
func (s Section) String() string {
	switch s {
	case SectionResponse:
		return "response"
	case SectionReflection:
		return "reflection"
	case SectionSignals:
		return "signals"
	case SectionActionHints:
		return "action_hints"
	default:
		return "none"
	}
}

// streamed reports whether the section's content is emitted as deltas.
// Non-streamed sections are buffered and parsed as a whole.
func (s Section) streamed() bool {
	return s == SectionResponse || s == SectionReflection
}

// Marker literals. These are server-internal wire format between the
// generation backend and the demultiplexer; clients never see them.
var sectionMarkers = []struct {
	section    Section
	start, end string
}{
	{SectionResponse, "<response>", "</response>"},
	{SectionReflection, "<reflection>", "</reflection>"},
	{SectionSignals, "<signals>", "</signals>"},
	{SectionActionHints, "<action_hints>", "</action_hints>"},
}

// maxStartLen bounds how many trailing bytes can be a partial start
// marker while no section is active.
const maxStartLen = len("<action_hints>")

func endMarker(s Section) string {
	for _, m := range sectionMarkers {
		if m.section == s {
			return m.end
		}
	}
	return ""
}

// Demux is the sectioned stream demultiplexer state for one turn.
type Demux struct {
	active  Section
	pending string
	log     *slog.Logger
}

// New creates a demultiplexer. log may be nil.
func New(log *slog.Logger) *Demux {
	if log == nil {
		log = slog.Default()
	}
	return &Demux{log: log}
}

// Feed consumes the next raw chunk and returns zero or more events. The
// chunk may be arbitrarily small; a marker split across chunk boundaries
// is never missed nor falsely detected inside streamed content.
func (d *Demux) Feed(chunk string) []Event {
	d.pending += chunk
	var events []Event

	for {
		if d.active == SectionNone {
			sec, at, markerLen := findStartMarker(d.pending)
			if sec == SectionNone {
				// Bytes before a start marker are inter-section noise
				// and are never emitted. Keep only a tail that could
				// still be a partial marker.
				if keep := maxStartLen - 1; len(d.pending) > keep {
					d.pending = d.pending[len(d.pending)-keep:]
				}
				return events
			}
			d.pending = d.pending[at+markerLen:]
			d.active = sec
			continue
		}

		end := endMarker(d.active)
		if i := strings.Index(d.pending, end); i >= 0 {
			content := d.pending[:i]
			d.pending = d.pending[i+len(end):]
			events = append(events, d.closeSection(content)...)
			continue
		}

		if !d.active.streamed() {
			// Buffered sections accumulate silently until their own end
			// marker; content can never masquerade as another section's
			// boundary because no other marker is scanned for.
			return events
		}

		// Withhold a tail that could be the start of the end marker;
		// everything before it is safe to emit now. The cut then backs
		// up to a rune boundary so a multi-byte rune never splits
		// across deltas: each delta is JSON-encoded on the wire
		// independently, and an incomplete rune would be mangled to
		// U+FFFD there.
		hold := len(end) - 1
		if hold > len(d.pending) {
			hold = len(d.pending)
		}
		cut := len(d.pending) - hold
		for n := 0; n < utf8.UTFMax-1 && cut > 0 && !utf8.RuneStart(d.pending[cut]); n++ {
			cut--
		}
		if emit := d.pending[:cut]; emit != "" {
			events = append(events, deltaFor(d.active, emit))
			d.pending = d.pending[cut:]
		}
		return events
	}
}

// Finish signals the end of the raw stream. A still-active section is
// closed best-effort as if its end marker had been seen. The demultiplexer
// is reset and must not be fed again.
func (d *Demux) Finish() []Event {
	var events []Event
	if d.active != SectionNone {
		events = d.closeSection(d.pending)
	}
	d.active = SectionNone
	d.pending = ""
	return events
}

// closeSection deactivates the current section, producing its final
// events: a last delta for streamed sections, a parsed ready-event (or
// nothing, on parse failure) for buffered ones.
func (d *Demux) closeSection(content string) []Event {
	sec := d.active
	d.active = SectionNone

	if sec.streamed() {
		if content == "" {
			return nil
		}
		return []Event{deltaFor(sec, content)}
	}

	switch sec {
	case SectionSignals:
		signals, err := parseSignals(content)
		if err != nil {
			d.log.Warn("dropping malformed signals section", "error", err, "len", len(content))
			return nil
		}
		return []Event{SignalsReady{Signals: signals}}
	case SectionActionHints:
		hints, err := parseActionHints(content)
		if err != nil {
			d.log.Warn("dropping malformed action_hints section", "error", err, "len", len(content))
			return nil
		}
		return []Event{ActionHintsReady{Hints: hints}}
	}
	return nil
}

func deltaFor(sec Section, text string) Event {
	if sec == SectionReflection {
		return ReflectionDelta{Delta: text}
	}
	return ResponseDelta{Delta: text}
}

// findStartMarker returns the section whose start marker occurs earliest
// in s, with its position and length. SectionNone if no complete start
// marker is present.
func findStartMarker(s string) (sec Section, at, markerLen int) {
	sec, at = SectionNone, -1
	for _, m := range sectionMarkers {
		i := strings.Index(s, m.start)
		if i < 0 {
			continue
		}
		if at < 0 || i < at {
			sec, at, markerLen = m.section, i, len(m.start)
		}
	}
	return sec, at, markerLen
}
