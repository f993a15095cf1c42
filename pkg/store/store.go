// Package store persists conversation state: messages, reflections,
// extracted signals, and the extraction-trigger bookkeeping. Everything is
// scoped to a conversation and stored in KV with msgpack-encoded values.
//
// Messages and reflections are keyed by a zero-padded nanosecond timestamp
// so KV's lexicographic iteration is chronological. Signals are keyed by
// their content fingerprint, which is what makes cross-turn deduplication
// a plain upsert.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/inquest-app/inquest/pkg/kv"
	"github.com/inquest-app/inquest/pkg/signal"
	"github.com/inquest-app/inquest/pkg/trigger"
)

// Roles for stored messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation entry.
type Message struct {
	ID        string `msgpack:"id"`
	Role      string `msgpack:"role"`
	Text      string `msgpack:"text"`
	Timestamp int64  `msgpack:"ts"`
}

// Reflection is one persisted private reflection.
type Reflection struct {
	ID        string `msgpack:"id"`
	Text      string `msgpack:"text"`
	Timestamp int64  `msgpack:"ts"`
}

// storedSignal is the persisted signal record.
type storedSignal struct {
	ID        string `msgpack:"id"`
	Type      string `msgpack:"type"`
	Text      string `msgpack:"text"`
	Timestamp int64  `msgpack:"ts"`
	Consumed  bool   `msgpack:"consumed"`
}

// Conv is the persistence handle for one conversation.
type Conv struct {
	store kv.Store
	id    string

	mu     sync.Mutex
	lastTS int64
}

// Open returns the persistence handle for convID. Opening is cheap and
// does not touch the store.
func Open(s kv.Store, convID string) *Conv {
	return &Conv{store: s, id: convID}
}

// ID returns the conversation identifier.
func (c *Conv) ID() string { return c.id }

// nextTS returns a strictly increasing nanosecond timestamp so two saves
// in the same nanosecond cannot collide on a key.
func (c *Conv) nextTS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := time.Now().UnixNano()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

func tsSegment(ts int64) string {
	return fmt.Sprintf("%020d", ts)
}

// SaveMessage persists a message and returns its permanent id.
func (c *Conv) SaveMessage(ctx context.Context, role, text string) (string, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: c.nextTS(),
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return "", err
	}
	key := kv.Key{"conv", c.id, "msg", tsSegment(msg.Timestamp)}
	if err := c.store.Set(ctx, key, data); err != nil {
		return "", fmt.Errorf("store: save message: %w", err)
	}
	return msg.ID, nil
}

// RecentMessages returns the n most recent messages in chronological
// order, oldest first.
func (c *Conv) RecentMessages(ctx context.Context, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var all []Message
	for entry, err := range c.store.List(ctx, kv.Key{"conv", c.id, "msg"}) {
		if err != nil {
			return nil, err
		}
		var msg Message
		if err := msgpack.Unmarshal(entry.Value, &msg); err != nil {
			continue
		}
		all = append(all, msg)
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// SaveReflection persists a reflection and returns its permanent id.
func (c *Conv) SaveReflection(ctx context.Context, text string) (string, error) {
	r := Reflection{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: c.nextTS(),
	}
	data, err := msgpack.Marshal(r)
	if err != nil {
		return "", err
	}
	key := kv.Key{"conv", c.id, "refl", tsSegment(r.Timestamp)}
	if err := c.store.Set(ctx, key, data); err != nil {
		return "", fmt.Errorf("store: save reflection: %w", err)
	}
	return r.ID, nil
}

// TriggerState loads the conversation's extraction bookkeeping. A fresh
// conversation returns the zero state.
func (c *Conv) TriggerState(ctx context.Context) (trigger.State, error) {
	data, err := c.store.Get(ctx, kv.Key{"conv", c.id, "trigger"})
	if errors.Is(err, kv.ErrNotFound) {
		return trigger.State{}, nil
	}
	if err != nil {
		return trigger.State{}, err
	}
	var s trigger.State
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return trigger.State{}, fmt.Errorf("store: decode trigger state: %w", err)
	}
	return s, nil
}

// SaveTriggerState persists the extraction bookkeeping for the next turn.
func (c *Conv) SaveTriggerState(ctx context.Context, s trigger.State) error {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, kv.Key{"conv", c.id, "trigger"}, data)
}

// UpsertSignal persists a signal keyed by its content fingerprint. A
// signal with the same type and case-insensitively equal text resolves to
// the already-stored record, in this turn or any later one.
func (c *Conv) UpsertSignal(ctx context.Context, typ, text string) (id string, isNew bool, err error) {
	fp := signal.Fingerprint(typ, text)
	key := kv.Key{"conv", c.id, "signal", fp}

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var existing storedSignal
		if derr := msgpack.Unmarshal(data, &existing); derr != nil {
			return "", false, fmt.Errorf("store: decode signal %s: %w", fp, derr)
		}
		return existing.ID, false, nil
	case !errors.Is(err, kv.ErrNotFound):
		return "", false, err
	}

	rec := storedSignal{
		ID:        uuid.NewString(),
		Type:      typ,
		Text:      text,
		Timestamp: c.nextTS(),
	}
	data, err = msgpack.Marshal(rec)
	if err != nil {
		return "", false, err
	}
	if err := c.store.Set(ctx, key, data); err != nil {
		return "", false, fmt.Errorf("store: save signal: %w", err)
	}
	return rec.ID, true, nil
}

// UnconsumedSignals returns up to n signals not yet fed back into a
// generation request, oldest first.
func (c *Conv) UnconsumedSignals(ctx context.Context, n int) ([]signal.Signal, error) {
	if n <= 0 {
		return nil, nil
	}
	var recs []storedSignal
	for entry, err := range c.store.List(ctx, kv.Key{"conv", c.id, "signal"}) {
		if err != nil {
			return nil, err
		}
		var rec storedSignal
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			continue
		}
		if !rec.Consumed {
			recs = append(recs, rec)
		}
	}
	// Fingerprint keys are not chronological; order by save time.
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].Timestamp < recs[j-1].Timestamp; j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
	if len(recs) > n {
		recs = recs[:n]
	}
	out := make([]signal.Signal, len(recs))
	for i, rec := range recs {
		out[i] = signal.Signal{ID: rec.ID, Type: rec.Type, Text: rec.Text}
	}
	return out, nil
}

// MarkSignalsConsumed flags the given signal ids as consumed.
func (c *Conv) MarkSignalsConsumed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for entry, err := range c.store.List(ctx, kv.Key{"conv", c.id, "signal"}) {
		if err != nil {
			return err
		}
		var rec storedSignal
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			continue
		}
		if !wanted[rec.ID] || rec.Consumed {
			continue
		}
		rec.Consumed = true
		data, err := msgpack.Marshal(rec)
		if err != nil {
			return err
		}
		if err := c.store.Set(ctx, entry.Key, data); err != nil {
			return err
		}
	}
	return nil
}

// VectorSink is the embed-queue sink: it stores a signal's embedding
// vector. Signal ids are unique across conversations, so vectors are
// keyed by id alone.
func VectorSink(s kv.Store) signal.VectorSink {
	return func(ctx context.Context, signalID string, vec []float32) error {
		data, err := msgpack.Marshal(vec)
		if err != nil {
			return err
		}
		return s.Set(ctx, kv.Key{"sigvec", signalID}, data)
	}
}
