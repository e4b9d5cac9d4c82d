package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"stockcore/internal/infra/keyed/keyedtest"
	"stockcore/pkg/domain"
)

func TestSQLiteStoreContract(t *testing.T) {
	keyedtest.Run(t, func(t *testing.T) domain.KeyedStore {
		store, err := NewStore(filepath.Join(t.TempDir(), "keyed.db"))
		if err != nil {
			t.Fatalf("new store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "keyed.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.Insert(ctx, 1, domain.Record("alpha")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := store.Insert(ctx, 2, domain.Record("beta")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.SetCounter(ctx, 2); err != nil {
		t.Fatalf("set counter: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	rec, ok, err := reopened.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(rec, []byte("alpha")) {
		t.Fatalf("record not durable: got %q", rec)
	}
	counter, err := reopened.Counter(ctx)
	if err != nil {
		t.Fatalf("counter after reopen: %v", err)
	}
	if counter != 2 {
		t.Fatalf("counter not durable: got %d want 2", counter)
	}
	var keys []uint64
	if err := reopened.Ascend(ctx, func(key uint64, _ domain.Record) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		t.Fatalf("ascend after reopen: %v", err)
	}
	if len(keys) != 2 || keys[0] != 1 || keys[1] != 2 {
		t.Fatalf("unexpected keys after reopen: %v", keys)
	}
}

func TestSQLiteStoreCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "keyed.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store with nested path: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != path {
		t.Fatalf("path accessor: got %q want %q", store.Path(), path)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
}
