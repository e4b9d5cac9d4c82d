package backup

import (
	"context"
	"testing"
	"time"

	"stockcore/internal/core"
	archivememory "stockcore/internal/infra/archive/memory"
	keyedmemory "stockcore/internal/infra/keyed/memory"
	"stockcore/pkg/domain"
)

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	if _, err := service.AddItem(ctx, domain.ItemPayload{Name: "Widget", Quantity: 10, Price: 2.5}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := service.AddItem(ctx, domain.ItemPayload{Name: "Gadget", Quantity: 1, Price: 9.99}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := service.DeleteItem(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	store := archivememory.New()
	worker := NewWorker(service, store, nil)
	worker.Start()
	defer func() { _ = worker.Stop(ctx) }()
	record, err := worker.EnqueueSnapshot(ctx, SnapshotInput{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	final := waitForTerminal(t, worker, record.ID)

	doc, err := ReadDocument(ctx, store, final.Key)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}

	target := keyedmemory.NewStore()
	defer func() { _ = target.Close() }()
	if err := Restore(ctx, target, doc); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored := core.NewService(target)
	items, err := restored.ListItems(ctx)
	if err != nil {
		t.Fatalf("list restored: %v", err)
	}
	if len(items) != 1 || !items[0].Equal(doc.Items[0]) {
		t.Fatalf("restored items diverge: %+v vs %+v", items, doc.Items)
	}
	created, err := restored.AddItem(ctx, domain.ItemPayload{Name: "Sprocket", Quantity: 3, Price: 0.5})
	if err != nil {
		t.Fatalf("add after restore: %v", err)
	}
	if created.ID != 3 {
		t.Fatalf("restore must preserve the counter: new id %d want 3", created.ID)
	}
}

func TestRestoreRejectsPopulatedStore(t *testing.T) {
	ctx := context.Background()
	target := keyedmemory.NewStore()
	defer func() { _ = target.Close() }()
	if _, err := core.NewService(target).AddItem(ctx, domain.ItemPayload{Name: "Widget", Quantity: 1, Price: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	doc := Document{Version: DocumentVersion, TakenAt: time.Now().UTC()}
	if err := Restore(ctx, target, doc); err == nil {
		t.Fatalf("expected rejection of a populated store")
	}
}

func TestRestoreValidatesDocument(t *testing.T) {
	ctx := context.Background()
	created := time.Now().UTC()
	cases := []struct {
		name string
		doc  Document
	}{
		{
			name: "wrong version",
			doc:  Document{Version: 99},
		},
		{
			name: "id beyond counter",
			doc: Document{
				Version:         DocumentVersion,
				LastAllocatedID: 1,
				Items:           []domain.InventoryItem{{ID: 5, Name: "Widget", Quantity: 1, Price: 1, CreatedAt: created}},
			},
		},
		{
			name: "zero id",
			doc: Document{
				Version:         DocumentVersion,
				LastAllocatedID: 1,
				Items:           []domain.InventoryItem{{ID: 0, Name: "Widget", Quantity: 1, Price: 1, CreatedAt: created}},
			},
		},
		{
			name: "duplicate id",
			doc: Document{
				Version:         DocumentVersion,
				LastAllocatedID: 2,
				Items: []domain.InventoryItem{
					{ID: 1, Name: "Widget", Quantity: 1, Price: 1, CreatedAt: created},
					{ID: 1, Name: "Copy", Quantity: 1, Price: 1, CreatedAt: created},
				},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := keyedmemory.NewStore()
			defer func() { _ = target.Close() }()
			if err := Restore(ctx, target, tc.doc); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestReadDocumentMissingKey(t *testing.T) {
	if _, err := ReadDocument(context.Background(), archivememory.New(), "missing"); err == nil {
		t.Fatalf("expected fetch error")
	}
}
