// Package domain defines the inventory record shape, the validation rules
// for write payloads, the bounded record codec, and the durable keyed store
// contract implemented by the persistence drivers.
package domain

import (
	"strings"
	"time"
)

// InventoryItem is the sole persisted entity: one stock record stored under
// its numeric identifier. ID and CreatedAt are immutable once assigned;
// UpdatedAt stays nil until the first successful update.
type InventoryItem struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	Quantity  uint32     `json:"quantity"`
	Price     float64    `json:"price"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// Clone returns a copy that shares no pointers with the receiver, so a stored
// item can never be mutated through a returned UpdatedAt.
func (it InventoryItem) Clone() InventoryItem {
	out := it
	if it.UpdatedAt != nil {
		ts := *it.UpdatedAt
		out.UpdatedAt = &ts
	}
	return out
}

// Equal reports whether both items carry identical field values. Timestamps
// compare with time.Equal so equality survives serialization round trips.
func (it InventoryItem) Equal(other InventoryItem) bool {
	if it.ID != other.ID || it.Name != other.Name || it.Quantity != other.Quantity || it.Price != other.Price {
		return false
	}
	if !it.CreatedAt.Equal(other.CreatedAt) {
		return false
	}
	if it.UpdatedAt == nil || other.UpdatedAt == nil {
		return it.UpdatedAt == nil && other.UpdatedAt == nil
	}
	return it.UpdatedAt.Equal(*other.UpdatedAt)
}

// ItemPayload carries the caller-supplied fields for create and update calls.
type ItemPayload struct {
	Name     string  `json:"name"`
	Quantity uint32  `json:"quantity"`
	Price    float64 `json:"price"`
}

// Validate checks the payload preconditions in declaration order and returns
// an ErrInvalidInput naming the first field that fails. Validation never
// touches stored state.
func (p ItemPayload) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidInput{Field: "name", Reason: "must not be empty"}
	}
	if p.Quantity == 0 {
		return ErrInvalidInput{Field: "quantity", Reason: "must be greater than zero"}
	}
	if !(p.Price > 0) {
		return ErrInvalidInput{Field: "price", Reason: "must be greater than zero"}
	}
	return nil
}
