package domain

import "context"

// Record is the serialized byte form of an item as stored under its key.
type Record []byte

// KeyedStore is the durable ordered map underlying the service: uint64 keys
// to opaque records, plus one persisted counter cell. Implementations carry
// no domain knowledge. Stored records and returned records must be copies,
// so neither side can alias the other's buffers.
//
// The service is the single writer; drivers may lock internally for their own
// consistency but must not rely on callers serializing reads.
type KeyedStore interface {
	// Get returns the record stored under key, or ok=false when unset.
	Get(ctx context.Context, key uint64) (rec Record, ok bool, err error)
	// Insert stores rec under key with overwrite semantics and returns the
	// replaced record when one existed.
	Insert(ctx context.Context, key uint64, rec Record) (prev Record, replaced bool, err error)
	// Remove deletes the record under key and returns it, or ok=false when
	// the key was unset.
	Remove(ctx context.Context, key uint64) (prev Record, ok bool, err error)
	// Ascend visits records in ascending key order, stopping early when fn
	// returns false. A fresh call starts from the beginning and observes the
	// store as of call time.
	Ascend(ctx context.Context, fn func(key uint64, rec Record) bool) error
	// Counter reads the persisted counter cell; zero when never written.
	Counter(ctx context.Context) (uint64, error)
	// SetCounter durably writes the counter cell. It fails only on storage
	// exhaustion or corruption in the underlying backend.
	SetCounter(ctx context.Context, value uint64) error
	// Close releases driver resources. The store is unusable afterwards.
	Close() error
}
