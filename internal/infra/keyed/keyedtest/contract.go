// Package keyedtest runs keyed store drivers through one shared conformance
// suite so their contract semantics cannot drift apart.
package keyedtest

import (
	"bytes"
	"context"
	"math"
	"testing"

	"stockcore/pkg/domain"
)

// Factory returns a fresh, empty store for one subtest. Implementations
// register any cleanup through t.
type Factory func(t *testing.T) domain.KeyedStore

// Run exercises the full KeyedStore contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		store := factory(t)
		rec, ok, err := store.Get(ctx, 1)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok || rec != nil {
			t.Fatalf("expected absent key, got ok=%v rec=%q", ok, rec)
		}
	})

	t.Run("insert then get", func(t *testing.T) {
		store := factory(t)
		prev, replaced, err := store.Insert(ctx, 7, domain.Record("alpha"))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if replaced || prev != nil {
			t.Fatalf("fresh insert reported a previous record: %q", prev)
		}
		rec, ok, err := store.Get(ctx, 7)
		if err != nil || !ok {
			t.Fatalf("get after insert: ok=%v err=%v", ok, err)
		}
		if !bytes.Equal(rec, []byte("alpha")) {
			t.Fatalf("got %q want %q", rec, "alpha")
		}
	})

	t.Run("insert overwrites and returns previous", func(t *testing.T) {
		store := factory(t)
		mustInsert(t, store, 7, "alpha")
		prev, replaced, err := store.Insert(ctx, 7, domain.Record("beta"))
		if err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		if !replaced || !bytes.Equal(prev, []byte("alpha")) {
			t.Fatalf("expected previous %q, got replaced=%v prev=%q", "alpha", replaced, prev)
		}
		rec, ok, err := store.Get(ctx, 7)
		if err != nil || !ok || !bytes.Equal(rec, []byte("beta")) {
			t.Fatalf("get after overwrite: rec=%q ok=%v err=%v", rec, ok, err)
		}
	})

	t.Run("remove returns previous", func(t *testing.T) {
		store := factory(t)
		mustInsert(t, store, 3, "gamma")
		prev, ok, err := store.Remove(ctx, 3)
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if !ok || !bytes.Equal(prev, []byte("gamma")) {
			t.Fatalf("expected removed record %q, got ok=%v prev=%q", "gamma", ok, prev)
		}
		if _, ok, err := store.Get(ctx, 3); err != nil || ok {
			t.Fatalf("key survived removal: ok=%v err=%v", ok, err)
		}
	})

	t.Run("remove missing key", func(t *testing.T) {
		store := factory(t)
		prev, ok, err := store.Remove(ctx, 42)
		if err != nil {
			t.Fatalf("remove: %v", err)
		}
		if ok || prev != nil {
			t.Fatalf("expected absent key, got ok=%v prev=%q", ok, prev)
		}
	})

	t.Run("ascend visits keys in ascending order", func(t *testing.T) {
		store := factory(t)
		keys := []uint64{30, math.MaxUint64, 10, 1<<63 + 7, 20}
		for _, k := range keys {
			mustInsert(t, store, k, "v")
		}
		var visited []uint64
		err := store.Ascend(ctx, func(key uint64, _ domain.Record) bool {
			visited = append(visited, key)
			return true
		})
		if err != nil {
			t.Fatalf("ascend: %v", err)
		}
		want := []uint64{10, 20, 30, 1<<63 + 7, math.MaxUint64}
		if len(visited) != len(want) {
			t.Fatalf("visited %v want %v", visited, want)
		}
		for i := range want {
			if visited[i] != want[i] {
				t.Fatalf("visited %v want %v", visited, want)
			}
		}
	})

	t.Run("ascend stops when fn returns false", func(t *testing.T) {
		store := factory(t)
		for _, k := range []uint64{1, 2, 3, 4} {
			mustInsert(t, store, k, "v")
		}
		var visited int
		err := store.Ascend(ctx, func(uint64, domain.Record) bool {
			visited++
			return visited < 2
		})
		if err != nil {
			t.Fatalf("ascend: %v", err)
		}
		if visited != 2 {
			t.Fatalf("expected early stop after 2 visits, got %d", visited)
		}
	})

	t.Run("ascend restarts from the beginning", func(t *testing.T) {
		store := factory(t)
		for _, k := range []uint64{5, 6} {
			mustInsert(t, store, k, "v")
		}
		first := collectKeys(t, store)
		mustInsert(t, store, 4, "v")
		second := collectKeys(t, store)
		if len(first) != 2 || first[0] != 5 {
			t.Fatalf("first pass saw %v", first)
		}
		if len(second) != 3 || second[0] != 4 {
			t.Fatalf("second pass should restart and see new state, saw %v", second)
		}
	})

	t.Run("counter starts at zero", func(t *testing.T) {
		store := factory(t)
		value, err := store.Counter(ctx)
		if err != nil {
			t.Fatalf("counter: %v", err)
		}
		if value != 0 {
			t.Fatalf("expected fresh counter 0, got %d", value)
		}
	})

	t.Run("counter round trip", func(t *testing.T) {
		store := factory(t)
		for _, v := range []uint64{1, 41, math.MaxUint64} {
			if err := store.SetCounter(ctx, v); err != nil {
				t.Fatalf("set counter %d: %v", v, err)
			}
			got, err := store.Counter(ctx)
			if err != nil {
				t.Fatalf("read counter: %v", err)
			}
			if got != v {
				t.Fatalf("counter round trip: got %d want %d", got, v)
			}
		}
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := factory(t)
		mustInsert(t, store, 9, "immutable")
		rec, _, err := store.Get(ctx, 9)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		for i := range rec {
			rec[i] = 'x'
		}
		again, _, err := store.Get(ctx, 9)
		if err != nil {
			t.Fatalf("get again: %v", err)
		}
		if !bytes.Equal(again, []byte("immutable")) {
			t.Fatalf("stored record was mutated through a returned buffer: %q", again)
		}
	})
}

func mustInsert(t *testing.T, store domain.KeyedStore, key uint64, value string) {
	t.Helper()
	if _, _, err := store.Insert(context.Background(), key, domain.Record(value)); err != nil {
		t.Fatalf("insert %d: %v", key, err)
	}
}

func collectKeys(t *testing.T, store domain.KeyedStore) []uint64 {
	t.Helper()
	var keys []uint64
	if err := store.Ascend(context.Background(), func(key uint64, _ domain.Record) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		t.Fatalf("ascend: %v", err)
	}
	return keys
}
