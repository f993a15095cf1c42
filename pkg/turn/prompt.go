package turn

import (
	"fmt"
	"strings"

	"github.com/inquest-app/inquest/pkg/signal"
)

// Conversation modes. The mode shapes the instruction preamble; unknown
// modes fall back to general.
const (
	ModeGeneral = "general"
	ModeCase    = "case"
	ModeInquiry = "inquiry"
)

var modePreambles = map[string]string{
	ModeGeneral: "You are a thinking partner. Help the user reason through " +
		"whatever they bring, without steering them to premature conclusions.",
	ModeCase: "You are a thinking partner working inside a case file. Keep " +
		"your answers anchored to the case at hand and flag anything that " +
		"contradicts what is already established.",
	ModeInquiry: "You are a thinking partner running a structured inquiry. " +
		"Prefer questions that sharpen the inquiry over answers that close it.",
}

// Instructions builds the system preamble for one turn: the mode-specific
// opening, the section-marker output format, and — when extraction is
// requested — the extraction instructions plus the window of prior
// unconsumed signals.
func Instructions(mode string, extract bool, pending []signal.Signal) string {
	var b strings.Builder

	preamble, ok := modePreambles[mode]
	if !ok {
		preamble = modePreambles[ModeGeneral]
	}
	b.WriteString(preamble)
	b.WriteString("\n\n")

	b.WriteString("Structure every reply with these exact markers, in this order:\n")
	b.WriteString("<response>your reply to the user</response>\n")
	b.WriteString("<reflection>a short private note on how the conversation is going; " +
		"the user never sees this</reflection>\n")

	if extract {
		b.WriteString("<signals>a JSON list of observations worth tracking, " +
			`each {"type","text"}; types: Assumption, Claim, Constraint, Question, Tension; ` +
			"an empty list [] if nothing stands out</signals>\n")
		b.WriteString("<action_hints>a JSON list of follow-up suggestions, " +
			`each {"label","kind"}; at most three</action_hints>` + "\n")
	}

	b.WriteString("\nEmit nothing outside the markers. Do not nest sections.\n")

	if extract && len(pending) > 0 {
		b.WriteString("\nSignals already on file (do not re-extract these, but " +
			"revise your response if the conversation now contradicts one):\n")
		for _, s := range pending {
			fmt.Fprintf(&b, "- [%s] %s\n", s.Type, s.Text)
		}
	}

	return b.String()
}
