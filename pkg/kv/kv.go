// Package kv provides the key-value persistence layer used by the turn
// stores. Keys are hierarchical paths represented as string slices
// (e.g., ["conv", id, "msg", ts]) joined with ':'.
//
// Two implementations are provided: a BadgerDB-backed store for the server
// and an in-memory store for tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form. Segments must not
// contain it; all keys in this module are fixed words, uuids, or hex
// digests, none of which can.
const Separator = ":"

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the encoded key, for storage and display alike.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries under the given prefix, in
	// lexicographic order by encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases any resources held by the store.
	Close() error
}

// encodePrefix returns the byte prefix that matches all children of k.
// An empty key matches everything.
func encodePrefix(k Key) []byte {
	if len(k) == 0 {
		return nil
	}
	return []byte(k.String() + Separator)
}

// decodeKey splits an encoded key back into segments.
func decodeKey(b []byte) Key {
	return Key(strings.Split(string(b), Separator))
}
