package domain

import (
	"encoding/json"
	"fmt"
)

// MaxRecordSize bounds the encoded form of a single item. Oversized records
// are rejected loudly, never truncated. The bound is part of the persisted
// format contract; shrinking it would strand already-stored records.
const MaxRecordSize = 1024

// EncodeItem serializes an item into its durable record form. The encoding
// is lossless for every valid item: DecodeItem(EncodeItem(x)) equals x.
func EncodeItem(item InventoryItem) (Record, error) {
	buf, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item %d: %w", item.ID, err)
	}
	if len(buf) > MaxRecordSize {
		return nil, fmt.Errorf("encode item %d: record is %d bytes, exceeds the %d byte bound", item.ID, len(buf), MaxRecordSize)
	}
	return Record(buf), nil
}

// DecodeItem restores an item from its durable record form.
func DecodeItem(rec Record) (InventoryItem, error) {
	var item InventoryItem
	if err := json.Unmarshal(rec, &item); err != nil {
		return InventoryItem{}, fmt.Errorf("decode item record: %w", err)
	}
	return item, nil
}
