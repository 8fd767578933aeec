// Package models defines core data structures for indexed items, queries, and responses.
package models

import (
	"fmt"
	"time"
)

// IndexedItem is one corpus entry: a unit-norm embedding vector plus display
// metadata, pinned to a stable slot in the vector engine. Items are immutable
// after insertion; replacing one means inserting under a new ID.
//
// Metadata values are decoded from JSON and restricted to scalars
// (string, float64, bool); nested values are rejected at ingestion.
type IndexedItem struct {
	ID        string                 `json:"id"`
	Vector    []float32              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Slot      int                    `json:"slot"`
	CreatedAt time.Time              `json:"created_at"`
}

// ItemInput is the ingestion payload for a single item. ID is optional; a
// UUID is minted when absent.
type ItemInput struct {
	ID       string                 `json:"id,omitempty"`
	Vector   []float32              `json:"vector"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ValidateMetadata rejects non-scalar metadata values.
func ValidateMetadata(metadata map[string]interface{}) error {
	for key, value := range metadata {
		switch value.(type) {
		case string, float64, bool, int, int64, nil:
		default:
			return fmt.Errorf("%w: metadata value for %q must be a string, number, or boolean", ErrInvalidArgument, key)
		}
	}
	return nil
}
