// Package core implements the inventory service: identifier allocation,
// payload validation, and CRUD over a durable keyed store, with pluggable
// audit, metrics, tracing, and logging seams.
package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"stockcore/pkg/domain"
)

// Operation names attached to metrics, spans, and audit entries.
const (
	OpAddItem    = "add_item"
	OpGetItem    = "get_item"
	OpListItems  = "list_items"
	OpUpdateItem = "update_item"
	OpDeleteItem = "delete_item"
)

// auditEntity names the single entity kind carried by audit entries.
const auditEntity = "inventory_item"

// auditMetadata maps mutating operations to their audit action. Read
// operations are absent on purpose: they produce metrics and spans but no
// audit trail.
var auditMetadata = map[string]AuditAction{
	OpAddItem:    AuditActionCreate,
	OpUpdateItem: AuditActionUpdate,
	OpDeleteItem: AuditActionDelete,
}

var errIdentifierSpaceExhausted = errors.New("identifier space exhausted")

// Service owns the inventory contract over a keyed store. A single mutex
// serializes every operation that touches the counter together with the
// record map, so concurrent callers can never observe a duplicated id or a
// torn composite write.
type Service struct {
	mu      sync.Mutex
	store   domain.KeyedStore
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger installs the logger the service reports internal events to.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditRecorder installs an audit sink for mutation outcomes.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder installs a metrics sink for operation outcomes.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer installs a tracer producing one span per operation.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source used for item and audit timestamps.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService constructs a service over the supplied keyed store. All
// observability seams default to no-ops.
func NewService(store domain.KeyedStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying keyed store for hosts that need direct
// access, such as snapshot restore.
func (s *Service) Store() domain.KeyedStore { return s.store }

// AddItem validates the payload, allocates the next identifier, and persists
// the new item. The counter advances before the record is written; if the
// write fails the counter is rolled back, and if that rollback fails too the
// id stays burned so no two items can ever share one.
func (s *Service) AddItem(ctx context.Context, payload domain.ItemPayload) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.instrument(ctx, OpAddItem, func(ctx context.Context) (uint64, error) {
		if err := payload.Validate(); err != nil {
			return 0, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()

		last, err := s.store.Counter(ctx)
		if err != nil {
			return 0, domain.ErrStorage{Op: "counter read", Err: err}
		}
		if last == math.MaxUint64 {
			return 0, domain.ErrStorage{Op: "id allocation", Err: errIdentifierSpaceExhausted}
		}
		id := last + 1
		if err := s.store.SetCounter(ctx, id); err != nil {
			return 0, domain.ErrStorage{Op: "counter write", Err: err}
		}

		created := domain.InventoryItem{
			ID:        id,
			Name:      payload.Name,
			Quantity:  payload.Quantity,
			Price:     payload.Price,
			CreatedAt: s.clock.Now(),
		}
		rec, err := domain.EncodeItem(created)
		if err != nil {
			s.rollbackCounter(ctx, last, id)
			return id, domain.ErrStorage{Op: "encode", Err: err}
		}
		if _, _, err := s.store.Insert(ctx, id, rec); err != nil {
			s.rollbackCounter(ctx, last, id)
			return id, domain.ErrStorage{Op: "insert", Err: err}
		}
		item = created
		return id, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// GetItem returns the item stored under id.
func (s *Service) GetItem(ctx context.Context, id uint64) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.instrument(ctx, OpGetItem, func(ctx context.Context) (uint64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		found, err := s.lookup(ctx, id)
		if err != nil {
			return id, err
		}
		item = found
		return id, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// ListItems returns every item in ascending id order. An empty inventory
// yields an empty, non-nil slice.
func (s *Service) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	items := []domain.InventoryItem{}
	err := s.instrument(ctx, OpListItems, func(ctx context.Context) (uint64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var decodeErr error
		if err := s.store.Ascend(ctx, func(key uint64, rec domain.Record) bool {
			item, err := domain.DecodeItem(rec)
			if err != nil {
				decodeErr = fmt.Errorf("record %d: %w", key, err)
				return false
			}
			items = append(items, item)
			return true
		}); err != nil {
			return 0, domain.ErrStorage{Op: "iterate", Err: err}
		}
		if decodeErr != nil {
			return 0, domain.ErrStorage{Op: "decode", Err: decodeErr}
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItem replaces the mutable fields of the item stored under id and
// stamps UpdatedAt. CreatedAt and the id itself never change.
func (s *Service) UpdateItem(ctx context.Context, id uint64, payload domain.ItemPayload) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.instrument(ctx, OpUpdateItem, func(ctx context.Context) (uint64, error) {
		if err := payload.Validate(); err != nil {
			return id, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		current, err := s.lookup(ctx, id)
		if err != nil {
			return id, err
		}
		updated := current
		updated.Name = payload.Name
		updated.Quantity = payload.Quantity
		updated.Price = payload.Price
		now := s.clock.Now()
		updated.UpdatedAt = &now
		rec, err := domain.EncodeItem(updated)
		if err != nil {
			return id, domain.ErrStorage{Op: "encode", Err: err}
		}
		if _, _, err := s.store.Insert(ctx, id, rec); err != nil {
			return id, domain.ErrStorage{Op: "insert", Err: err}
		}
		item = updated
		return id, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// DeleteItem removes the item stored under id and returns it. The freed id
// is never reallocated.
func (s *Service) DeleteItem(ctx context.Context, id uint64) (domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := s.instrument(ctx, OpDeleteItem, func(ctx context.Context) (uint64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok, err := s.store.Remove(ctx, id)
		if err != nil {
			return id, domain.ErrStorage{Op: "remove", Err: err}
		}
		if !ok {
			return id, domain.ErrNotFound{ID: id}
		}
		removed, err := domain.DecodeItem(rec)
		if err != nil {
			return id, domain.ErrStorage{Op: "decode", Err: err}
		}
		item = removed
		return id, nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

// LastAllocatedID reports the most recently allocated identifier, zero when
// none has been handed out yet. Snapshot writers persist it alongside the
// records so a restore cannot resurrect freed ids.
func (s *Service) LastAllocatedID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := s.store.Counter(ctx)
	if err != nil {
		return 0, domain.ErrStorage{Op: "counter read", Err: err}
	}
	return value, nil
}

// instrument runs fn under one span and fans the outcome out to metrics and
// the audit trail. fn reports the entity id it acted on so creations can
// audit their freshly allocated id.
func (s *Service) instrument(ctx context.Context, op string, fn func(context.Context) (uint64, error)) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err == nil {
		s.recordAuditSuccess(ctx, op, entityID, duration)
		return nil
	}
	s.logger.Debug("operation failed", "op", op, "error", err)
	s.recordAuditError(ctx, op, entityID, duration, err)
	return err
}

// recordAuditSuccess emits a success entry for op. Operations without audit
// metadata are ignored.
func (s *Service) recordAuditSuccess(ctx context.Context, op string, entityID uint64, duration time.Duration) {
	action, ok := auditMetadata[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    auditEntity,
		Action:    action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

// recordAuditError emits an error entry for op. Operations without audit
// metadata are ignored.
func (s *Service) recordAuditError(ctx context.Context, op string, entityID uint64, duration time.Duration, opErr error) {
	action, ok := auditMetadata[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    auditEntity,
		Action:    action,
		EntityID:  entityID,
		Status:    AuditStatusError,
		Error:     opErr.Error(),
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

// lookup fetches and decodes one record. Callers hold the service mutex.
func (s *Service) lookup(ctx context.Context, id uint64) (domain.InventoryItem, error) {
	rec, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.InventoryItem{}, domain.ErrStorage{Op: "get", Err: err}
	}
	if !ok {
		return domain.InventoryItem{}, domain.ErrNotFound{ID: id}
	}
	item, err := domain.DecodeItem(rec)
	if err != nil {
		return domain.InventoryItem{}, domain.ErrStorage{Op: "decode", Err: err}
	}
	return item, nil
}

// rollbackCounter returns the counter to its pre-allocation value after a
// failed write. When the rollback itself fails the id stays allocated and is
// permanently skipped rather than risking a duplicate.
func (s *Service) rollbackCounter(ctx context.Context, last, id uint64) {
	if err := s.store.SetCounter(ctx, last); err != nil {
		s.logger.Warn("counter rollback failed, id permanently skipped", "id", id, "error", err)
	}
}
