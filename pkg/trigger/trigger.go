// Package trigger decides, per turn, whether the generation request should
// ask for the signal-extraction section. Extraction adds generation cost and
// latency, so the policy amortizes it against turn count, accumulated user
// text, and explicit signal-bearing language, with a hard ceiling on
// staleness.
package trigger

import "strings"

// State is the per-conversation bookkeeping the policy runs on. It is an
// explicit record persisted alongside the conversation, never ambient
// process state. The zero value is a fresh conversation.
type State struct {
	// TurnCount is the number of completed turns in the conversation.
	TurnCount int `msgpack:"turn_count" json:"turn_count"`

	// LastExtractTurn is the TurnCount value recorded by the most recent
	// extracting turn. Zero when no turn has extracted yet.
	LastExtractTurn int `msgpack:"last_extract_turn" json:"last_extract_turn"`

	// CharsSinceExtract is the accumulated length of user messages since
	// the last extracting turn.
	CharsSinceExtract int `msgpack:"chars_since_extract" json:"chars_since_extract"`
}

// Thresholds for the accumulation and staleness rules.
const (
	minTurnsForAccumulation = 2
	minCharsForAccumulation = 200
	maxTurnsWithoutExtract  = 5
)

// phrases are signal-bearing fragments matched case-insensitively as
// substrings of the user message. Hedging and decision language correlate
// strongly with extractable assumptions and claims.
var phrases = []string{
	"i assume",
	"i think",
	"i believe",
	"i guess",
	"i suspect",
	"maybe",
	"probably",
	"not sure",
	"what if",
	"we should",
	"we could",
	"decide",
	"decision",
	"tradeoff",
	"risk",
}

// ShouldExtract reports whether the turn for userText should request signal
// extraction. Pure function of its inputs; rules are evaluated in order and
// the first match wins:
//
//  1. First turn of the conversation.
//  2. The message contains a trigger phrase.
//  3. At least 2 turns and 200 characters of user text accumulated since
//     the last extraction.
//  4. At least 5 turns since the last extraction, regardless of content.
func ShouldExtract(s State, userText string) bool {
	if s.TurnCount == 0 {
		return true
	}
	lower := strings.ToLower(userText)
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	turnsSince := s.TurnCount - s.LastExtractTurn
	if turnsSince >= minTurnsForAccumulation &&
		s.CharsSinceExtract+len(userText) >= minCharsForAccumulation {
		return true
	}
	if turnsSince >= maxTurnsWithoutExtract {
		return true
	}
	return false
}

// Advance returns the state to persist after a turn completes. extracted
// reports whether the turn actually requested extraction.
func Advance(s State, userText string, extracted bool) State {
	s.TurnCount++
	if extracted {
		s.LastExtractTurn = s.TurnCount
		s.CharsSinceExtract = 0
	} else {
		s.CharsSinceExtract += len(userText)
	}
	return s
}
