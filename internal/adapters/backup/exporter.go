// Package backup exports point-in-time snapshots of the inventory state to
// the archive store and restores them into an empty keyed store.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockcore/internal/archive"
	"stockcore/pkg/domain"
)

// SnapshotStatus describes the lifecycle stage of a snapshot request.
type SnapshotStatus string

const (
	SnapshotStatusQueued    SnapshotStatus = "queued"
	SnapshotStatusRunning   SnapshotStatus = "running"
	SnapshotStatusSucceeded SnapshotStatus = "succeeded"
	SnapshotStatusFailed    SnapshotStatus = "failed"
)

// DocumentVersion tags the snapshot document layout. Bump only with a
// backward-compatible decoder.
const DocumentVersion = 1

// snapshotContentType is the MIME type of archived snapshot documents.
const snapshotContentType = "application/json"

// Document is the archived form of the inventory state: the identifier
// counter plus every item, in ascending id order. Restoring it reproduces
// both so freed ids stay unavailable.
type Document struct {
	Version         int                    `json:"version"`
	TakenAt         time.Time              `json:"taken_at"`
	LastAllocatedID uint64                 `json:"last_allocated_id"`
	Items           []domain.InventoryItem `json:"items"`
}

// SnapshotRecord tracks one snapshot request through its lifecycle.
type SnapshotRecord struct {
	ID          string         `json:"id"`
	Key         string         `json:"key,omitempty"`
	Status      SnapshotStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	ItemCount   int            `json:"item_count"`
	SizeBytes   int64          `json:"size_bytes,omitempty"`
	URL         string         `json:"url,omitempty"`
	RequestedBy string         `json:"requested_by,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// SnapshotInput is an enqueue request for the worker.
type SnapshotInput struct {
	RequestedBy string
	Reason      string
}

// Source supplies the state a snapshot captures. *core.Service satisfies it.
type Source interface {
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
	LastAllocatedID(ctx context.Context) (uint64, error)
}

// Scheduler queues snapshot requests and exposes their status. The HTTP
// adapter depends on this interface rather than the concrete worker.
type Scheduler interface {
	EnqueueSnapshot(ctx context.Context, input SnapshotInput) (SnapshotRecord, error)
	GetSnapshot(id string) (SnapshotRecord, bool)
	ListSnapshots() []SnapshotRecord
}

// AuditLogger records snapshot lifecycle transitions.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures one snapshot lifecycle transition.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor,omitempty"`
	SnapshotID string         `json:"snapshot_id"`
	Status     SnapshotStatus `json:"status"`
	Note       string         `json:"note,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// auditAction names every entry emitted by the worker.
const auditAction = "inventory_snapshot"

// Worker captures snapshots asynchronously on a single goroutine, so at most
// one snapshot reads the service at a time.
type Worker struct {
	source  Source
	archive archive.Store
	audit   AuditLogger

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*SnapshotRecord
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a snapshot worker. audit may be nil.
func NewWorker(source Source, store archive.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source:  source,
		archive: store,
		audit:   audit,
		queue:   make(chan string, 16),
		jobs:    make(map[string]*SnapshotRecord),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing snapshot requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the in-flight snapshot, if
// any, to finish.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// EnqueueSnapshot registers a snapshot request and schedules it. A full
// queue rejects the request rather than blocking the caller.
func (w *Worker) EnqueueSnapshot(ctx context.Context, input SnapshotInput) (SnapshotRecord, error) {
	if w.source == nil {
		return SnapshotRecord{}, fmt.Errorf("snapshot source not configured")
	}
	if w.archive == nil {
		return SnapshotRecord{}, fmt.Errorf("snapshot archive not configured")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := SnapshotRecord{
		ID:          id,
		Status:      SnapshotStatusQueued,
		RequestedBy: strings.TrimSpace(input.RequestedBy),
		Reason:      strings.TrimSpace(input.Reason),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	w.order = append(w.order, id)
	queued := record
	w.mu.Unlock()

	w.recordAudit(ctx, id, SnapshotStatusQueued, "")

	select {
	case w.queue <- id:
	default:
		w.fail(id, "snapshot queue full")
		return SnapshotRecord{}, fmt.Errorf("snapshot queue full")
	}
	return queued, nil
}

// GetSnapshot returns a copy of the record for id.
func (w *Worker) GetSnapshot(id string) (SnapshotRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return SnapshotRecord{}, false
	}
	return *record, true
}

// ListSnapshots returns every record in request order.
func (w *Worker) ListSnapshots() []SnapshotRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]SnapshotRecord, 0, len(w.order))
	for _, id := range w.order {
		if record, ok := w.jobs[id]; ok {
			out = append(out, *record)
		}
	}
	return out
}

func (w *Worker) process(id string) {
	w.transition(id, SnapshotStatusRunning, "")

	doc, err := w.capture(w.ctx)
	if err != nil {
		w.fail(id, fmt.Sprintf("capture state: %v", err))
		return
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		w.fail(id, fmt.Sprintf("encode snapshot: %v", err))
		return
	}

	key := fmt.Sprintf("snapshots/%s-%s.json", doc.TakenAt.Format("20060102T150405Z"), id)
	info, err := w.archive.Put(w.ctx, key, bytes.NewReader(payload), archive.PutOptions{
		ContentType: snapshotContentType,
		Metadata: map[string]string{
			"snapshot_id": id,
			"items":       fmt.Sprintf("%d", len(doc.Items)),
		},
	})
	if err != nil {
		w.fail(id, fmt.Sprintf("store snapshot: %v", err))
		return
	}

	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = SnapshotStatusSucceeded
		record.Error = ""
		record.Key = key
		record.ItemCount = len(doc.Items)
		record.SizeBytes = info.Size
		record.URL = info.URL
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, SnapshotStatusSucceeded, key)
}

// capture reads the counter and the items. The service serializes both reads
// internally; capturing them back to back is safe because the worker is the
// only snapshot reader and restores never run against a live store.
func (w *Worker) capture(ctx context.Context) (Document, error) {
	last, err := w.source.LastAllocatedID(ctx)
	if err != nil {
		return Document{}, err
	}
	items, err := w.source.ListItems(ctx)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Version:         DocumentVersion,
		TakenAt:         time.Now().UTC(),
		LastAllocatedID: last,
		Items:           items,
	}, nil
}

func (w *Worker) transition(id string, status SnapshotStatus, note string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = ""
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, note)
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = SnapshotStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, SnapshotStatusFailed, reason)
}

func (w *Worker) recordAudit(ctx context.Context, id string, status SnapshotStatus, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor := ""
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     auditAction,
		Actor:      actor,
		SnapshotID: id,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

// MemoryAuditLog captures audit entries in memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record implements AuditLogger.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
