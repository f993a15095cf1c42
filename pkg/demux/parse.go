package demux

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/inquest-app/inquest/pkg/signal"
)

// unmarshalRepair unmarshals JSON, attempting a repair pass on syntax
// errors. Models occasionally emit trailing commas or unquoted keys in
// the structured sections; a repairable slip should not cost the turn
// its signals.
func unmarshalRepair(data string, v any) error {
	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(data)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// parseSignals decodes a buffered signals section. Both a bare list and
// an object wrapping the list under "signals" are accepted. Records with
// an empty type or text are skipped.
func parseSignals(raw string) ([]signal.Signal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var list []signal.Signal
	if err := unmarshalRepair(raw, &list); err != nil {
		var wrapped struct {
			Signals []signal.Signal `json:"signals"`
		}
		if werr := unmarshalRepair(raw, &wrapped); werr != nil || wrapped.Signals == nil {
			return nil, fmt.Errorf("signals section: %w", err)
		}
		list = wrapped.Signals
	}

	out := list[:0]
	for _, s := range list {
		if s.Type == "" || strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// parseActionHints decodes a buffered action_hints section, accepting the
// same bare or wrapped shapes as parseSignals.
func parseActionHints(raw string) ([]signal.ActionHint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var list []signal.ActionHint
	if err := unmarshalRepair(raw, &list); err != nil {
		var wrapped struct {
			Hints []signal.ActionHint `json:"action_hints"`
		}
		if werr := unmarshalRepair(raw, &wrapped); werr != nil || wrapped.Hints == nil {
			return nil, fmt.Errorf("action_hints section: %w", err)
		}
		list = wrapped.Hints
	}

	out := list[:0]
	for _, h := range list {
		if strings.TrimSpace(h.Label) == "" {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}
