// Package signal defines the structured observations the assistant extracts
// from conversation, and the content fingerprint used to deduplicate them
// across turns.
package signal

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// Known signal types. The generator is instructed to use these, but the
// type field is an open string: unknown types are stored as-is.
const (
	TypeAssumption = "Assumption"
	TypeClaim      = "Claim"
	TypeConstraint = "Constraint"
	TypeQuestion   = "Question"
	TypeTension    = "Tension"
)

// Signal is one typed observation extracted from conversation. ID is empty
// until the record has been persisted.
type Signal struct {
	ID   string `json:"id,omitempty" msgpack:"id"`
	Type string `json:"type" msgpack:"type"`
	Text string `json:"text" msgpack:"text"`
}

// ActionHint is a follow-up suggestion attached to a turn. Hints are
// ephemeral: they ride the wire but are never persisted.
type ActionHint struct {
	Label string `json:"label"`
	Kind  string `json:"kind,omitempty"`
}

// Fingerprint returns the deduplication key for a signal: a blake3 digest
// of the type and the lower-cased, space-trimmed text. Two signals whose
// texts differ only by case collapse to one fingerprint. The digest is
// hex-encoded and stable across processes; it is part of the public
// contract with the persistence layer.
func Fingerprint(typ, text string) string {
	h := blake3.New()
	h.Write([]byte(typ))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h.Sum(nil))
}
