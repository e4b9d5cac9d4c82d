// Package memory provides the in-process keyed store used for tests and
// development. Records survive only for the process lifetime.
package memory

import (
	"context"
	"sort"
	"sync"

	"stockcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.KeyedStore = (*Store)(nil)

// Store keeps records in a map guarded by a read-write mutex. Ordered
// iteration sorts a snapshot of the keys on demand.
type Store struct {
	mu      sync.RWMutex
	records map[uint64][]byte
	counter uint64
}

// NewStore returns an empty in-memory keyed store.
func NewStore() *Store {
	return &Store{records: make(map[uint64][]byte)}
}

func (s *Store) Get(_ context.Context, key uint64) (domain.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *Store) Insert(_ context.Context, key uint64, rec domain.Record) (domain.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, replaced := s.records[key]
	s.records[key] = cloneRecord(rec)
	if !replaced {
		return nil, false, nil
	}
	return cloneRecord(prev), true, nil
}

func (s *Store) Remove(_ context.Context, key uint64) (domain.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	delete(s.records, key)
	return cloneRecord(prev), true, nil
}

// Ascend copies the current contents under the read lock, then releases it
// before invoking fn so callbacks may call back into the store.
func (s *Store) Ascend(_ context.Context, fn func(key uint64, rec domain.Record) bool) error {
	s.mu.RLock()
	keys := make([]uint64, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	recs := make([]domain.Record, len(keys))
	for i, k := range keys {
		recs[i] = cloneRecord(s.records[k])
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if !fn(k, recs[i]) {
			return nil
		}
	}
	return nil
}

func (s *Store) Counter(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter, nil
}

func (s *Store) SetCounter(_ context.Context, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = value
	return nil
}

func (s *Store) Close() error { return nil }

// Len reports the number of stored records. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(rec []byte) domain.Record {
	if rec == nil {
		return nil
	}
	out := make([]byte, len(rec))
	copy(out, rec)
	return out
}
