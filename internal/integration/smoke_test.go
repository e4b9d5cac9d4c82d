// Package integration drives the assembled system end to end: env-selected
// storage, the service contract, durable restarts, and snapshot round trips.
package integration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stockcore/internal/adapters/backup"
	"stockcore/internal/archive"
	"stockcore/internal/core"
	"stockcore/internal/infra/keyed/sqlite"
	"stockcore/pkg/domain"
)

func TestServiceLifecycleOverEnvSelectedStore(t *testing.T) {
	t.Setenv("STOCKCORE_STORAGE_DRIVER", "memory")
	ctx := context.Background()
	store, err := core.OpenKeyedStore(ctx)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()
	service := core.NewService(store)

	widget, err := service.AddItem(ctx, domain.ItemPayload{Name: "Widget", Quantity: 10, Price: 2.5})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if widget.ID != 1 || widget.UpdatedAt != nil {
		t.Fatalf("unexpected first item: %+v", widget)
	}

	fetched, err := service.GetItem(ctx, widget.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !fetched.Equal(widget) {
		t.Fatalf("get diverges from created item: %+v vs %+v", fetched, widget)
	}

	updated, err := service.UpdateItem(ctx, widget.ID, domain.ItemPayload{Name: "Widget", Quantity: 5, Price: 3.0})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 5 || updated.Price != 3.0 || updated.UpdatedAt == nil {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.CreatedAt.Equal(widget.CreatedAt) {
		t.Fatalf("update changed created_at")
	}

	removed, err := service.DeleteItem(ctx, widget.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed.ID != widget.ID {
		t.Fatalf("delete returned %+v", removed)
	}
	var notFound domain.ErrNotFound
	if _, err := service.GetItem(ctx, widget.ID); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}

	gadget, err := service.AddItem(ctx, domain.ItemPayload{Name: "Gadget", Quantity: 1, Price: 1.0})
	if err != nil {
		t.Fatalf("add after delete: %v", err)
	}
	if gadget.ID != 2 {
		t.Fatalf("freed id was reallocated: got %d", gadget.ID)
	}
}

func TestSQLiteStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inventory.db")

	store, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	service := core.NewService(store)
	if _, err := service.AddItem(ctx, domain.ItemPayload{Name: "Widget", Quantity: 2, Price: 4}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := service.AddItem(ctx, domain.ItemPayload{Name: "Gadget", Quantity: 1, Price: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := service.DeleteItem(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	service = core.NewService(reopened)

	items, err := service.ListItems(ctx)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(items) != 1 || items[0].ID != 2 || items[0].Name != "Gadget" {
		t.Fatalf("state lost across reopen: %+v", items)
	}
	created, err := service.AddItem(ctx, domain.ItemPayload{Name: "Sprocket", Quantity: 1, Price: 1})
	if err != nil {
		t.Fatalf("add after reopen: %v", err)
	}
	if created.ID != 3 {
		t.Fatalf("counter lost across reopen: new id %d want 3", created.ID)
	}
}

func TestSnapshotAndRestoreAcrossStores(t *testing.T) {
	ctx := context.Background()
	t.Setenv("STOCKCORE_STORAGE_DRIVER", "memory")
	source, err := core.OpenKeyedStore(ctx)
	if err != nil {
		t.Fatalf("open source store: %v", err)
	}
	defer func() { _ = source.Close() }()
	service := core.NewService(source)
	for _, payload := range []domain.ItemPayload{
		{Name: "Widget", Quantity: 10, Price: 2.5},
		{Name: "Gadget", Quantity: 1, Price: 9.99},
		{Name: "Sprocket", Quantity: 7, Price: 0.25},
	} {
		if _, err := service.AddItem(ctx, payload); err != nil {
			t.Fatalf("seed %s: %v", payload.Name, err)
		}
	}
	if _, err := service.DeleteItem(ctx, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}

	archiveStore, err := archive.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	worker := backup.NewWorker(service, archiveStore, nil)
	worker.Start()
	defer func() { _ = worker.Stop(ctx) }()

	record, err := worker.EnqueueSnapshot(ctx, backup.SnapshotInput{RequestedBy: "integration"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		current, ok := worker.GetSnapshot(record.ID)
		if ok && current.Status == backup.SnapshotStatusSucceeded {
			record = current
			break
		}
		if ok && current.Status == backup.SnapshotStatusFailed {
			t.Fatalf("snapshot failed: %+v", current)
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	doc, err := backup.ReadDocument(ctx, archiveStore, record.Key)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	t.Setenv("STOCKCORE_SQLITE_PATH", filepath.Join(t.TempDir(), "restored.db"))
	t.Setenv("STOCKCORE_STORAGE_DRIVER", "sqlite")
	target, err := core.OpenKeyedStore(ctx)
	if err != nil {
		t.Fatalf("open target store: %v", err)
	}
	defer func() { _ = target.Close() }()
	if err := backup.Restore(ctx, target, doc); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored := core.NewService(target)
	items, err := restored.ListItems(ctx)
	if err != nil {
		t.Fatalf("list restored: %v", err)
	}
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 3 {
		t.Fatalf("restored inventory diverges: %+v", items)
	}
	created, err := restored.AddItem(ctx, domain.ItemPayload{Name: "Cog", Quantity: 1, Price: 1})
	if err != nil {
		t.Fatalf("add after restore: %v", err)
	}
	if created.ID != 4 {
		t.Fatalf("restored counter wrong: new id %d want 4", created.ID)
	}
}
