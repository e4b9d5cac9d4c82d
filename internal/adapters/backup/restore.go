package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"stockcore/internal/archive"
	"stockcore/pkg/domain"
)

// ReadDocument fetches and decodes an archived snapshot document.
func ReadDocument(ctx context.Context, store archive.Store, key string) (Document, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return Document{}, fmt.Errorf("fetch snapshot %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	if doc.Version != DocumentVersion {
		return Document{}, fmt.Errorf("snapshot %s has unsupported version %d", key, doc.Version)
	}
	return doc, nil
}

// Restore loads a snapshot document into store. The store must be empty: a
// restore never merges into live state, because that could resurrect deleted
// items or move the counter backwards.
func Restore(ctx context.Context, store domain.KeyedStore, doc Document) error {
	if doc.Version != DocumentVersion {
		return fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}
	if err := ensureEmpty(ctx, store); err != nil {
		return err
	}
	for _, item := range doc.Items {
		if item.ID == 0 {
			return fmt.Errorf("snapshot item %q carries id 0", item.Name)
		}
		if item.ID > doc.LastAllocatedID {
			return fmt.Errorf("snapshot item %d exceeds the recorded counter %d", item.ID, doc.LastAllocatedID)
		}
		rec, err := domain.EncodeItem(item)
		if err != nil {
			return fmt.Errorf("encode item %d: %w", item.ID, err)
		}
		if _, replaced, err := store.Insert(ctx, item.ID, rec); err != nil {
			return fmt.Errorf("insert item %d: %w", item.ID, err)
		} else if replaced {
			return fmt.Errorf("snapshot holds duplicate id %d", item.ID)
		}
	}
	if err := store.SetCounter(ctx, doc.LastAllocatedID); err != nil {
		return fmt.Errorf("restore counter: %w", err)
	}
	return nil
}

func ensureEmpty(ctx context.Context, store domain.KeyedStore) error {
	counter, err := store.Counter(ctx)
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}
	if counter != 0 {
		return fmt.Errorf("target store already allocated ids (counter=%d)", counter)
	}
	populated := false
	if err := store.Ascend(ctx, func(uint64, domain.Record) bool {
		populated = true
		return false
	}); err != nil {
		return fmt.Errorf("scan target store: %w", err)
	}
	if populated {
		return fmt.Errorf("target store already holds records")
	}
	return nil
}
