package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/inquest-app/inquest/pkg/kv"
)

// newTestStore builds a Store per backend so the same test logic covers
// the in-memory twin and the real badger engine.
func backends(t *testing.T) map[string]kv.Store {
	t.Helper()
	b, err := kv.NewBadger(kv.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	stores := map[string]kv.Store{
		"memory": kv.NewMemory(),
		"badger": b,
	}
	for _, s := range stores {
		s := s
		t.Cleanup(func() { s.Close() })
	}
	return stores
}

func TestBadgerInMemoryIgnoresDir(t *testing.T) {
	// Badger's Open rejects disk-less mode when a directory is set; the
	// serve command always has a configured data dir, so InMemory must
	// win over it.
	s, err := kv.NewBadger(kv.BadgerOptions{Dir: t.TempDir(), InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger in-memory with Dir set: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	key := kv.Key{"conv", "c1", "msg", "001"}
	if err := s.Set(ctx, key, []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, key)
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestBadgerOnDiskRequiresDir(t *testing.T) {
	if _, err := kv.NewBadger(kv.BadgerOptions{}); err == nil {
		t.Fatal("NewBadger with no Dir and no InMemory must fail")
	}
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := kv.Key{"conv", "c1", "msg", "001"}

			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get missing = %v, want ErrNotFound", err)
			}

			if err := s.Set(ctx, key, []byte("hello")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("Get = %q, want %q", got, "hello")
			}

			if err := s.Set(ctx, key, []byte("world")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			got, _ = s.Get(ctx, key)
			if string(got) != "world" {
				t.Fatalf("Get after overwrite = %q, want %q", got, "world")
			}

			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Get(ctx, key); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get after delete = %v, want ErrNotFound", err)
			}
			// Deleting again is not an error.
			if err := s.Delete(ctx, key); err != nil {
				t.Fatalf("Delete twice: %v", err)
			}
		})
	}
}

func TestListPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			set := func(k kv.Key, v string) {
				t.Helper()
				if err := s.Set(ctx, k, []byte(v)); err != nil {
					t.Fatalf("Set %v: %v", k, err)
				}
			}
			set(kv.Key{"conv", "a", "msg", "002"}, "m2")
			set(kv.Key{"conv", "a", "msg", "001"}, "m1")
			set(kv.Key{"conv", "ab", "msg", "001"}, "other conv")
			set(kv.Key{"conv", "a", "refl", "001"}, "r1")

			var got []string
			for e, err := range s.List(ctx, kv.Key{"conv", "a", "msg"}) {
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				got = append(got, string(e.Value))
			}
			want := []string{"m1", "m2"}
			if len(got) != len(want) {
				t.Fatalf("List = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("List[%d] = %q, want %q", i, got[i], want[i])
				}
			}

			// Prefix "conv:a" must not match "conv:ab".
			n := 0
			for _, err := range s.List(ctx, kv.Key{"conv", "a"}) {
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				n++
			}
			if n != 3 {
				t.Fatalf("List conv:a yielded %d entries, want 3", n)
			}
		})
	}
}

func TestListEarlyStop(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"001", "002", "003"} {
				if err := s.Set(ctx, kv.Key{"x", k}, []byte(k)); err != nil {
					t.Fatalf("Set: %v", err)
				}
			}
			n := 0
			for range s.List(ctx, kv.Key{"x"}) {
				n++
				if n == 2 {
					break
				}
			}
			if n != 2 {
				t.Fatalf("stopped after %d entries, want 2", n)
			}
		})
	}
}
