// Package storage persists collection snapshots: the item records that,
// together with the engine's vector file, reproduce an equivalent collection.
package storage

import (
	"context"

	"github.com/hyperjump/miru/internal/models"
)

// Store persists item records in slot order.
type Store interface {
	// ReplaceItems atomically replaces all stored records with items.
	ReplaceItems(ctx context.Context, items []*models.IndexedItem) error
	// ListItems returns all records ordered by slot.
	ListItems(ctx context.Context) ([]*models.IndexedItem, error)
	CountItems(ctx context.Context) (int64, error)
	Close() error
}
