package collection

import (
	"context"
	"fmt"

	"github.com/hyperjump/miru/internal/storage"
)

// Snapshot persists the collection: vectors to the engine's index file at
// indexPath, item records to store. The write is taken under the read lock so
// it is consistent with respect to concurrent inserts.
func (c *Collection) Snapshot(ctx context.Context, indexPath string, store storage.Store) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.index.Save(indexPath); err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	if err := store.ReplaceItems(ctx, c.items); err != nil {
		return fmt.Errorf("save item records: %w", err)
	}
	return nil
}

// Restore replaces the collection contents from a snapshot. The item records
// must agree with the vector file: same count, contiguous slots from 0.
// On any mismatch the error is returned and the collection is left empty
// rather than half-loaded.
func (c *Collection) Restore(ctx context.Context, indexPath string, store storage.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Load(indexPath); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	items, err := store.ListItems(ctx)
	if err != nil {
		c.index.Clear()
		return fmt.Errorf("load item records: %w", err)
	}
	if len(items) != c.index.Count() {
		c.index.Clear()
		return fmt.Errorf("snapshot mismatch: %d item records but %d vectors", len(items), c.index.Count())
	}

	idToSlot := make(map[string]int, len(items))
	for i, item := range items {
		if item.Slot != i {
			c.index.Clear()
			return fmt.Errorf("snapshot mismatch: item %s has slot %d at position %d", item.ID, item.Slot, i)
		}
		if _, dup := idToSlot[item.ID]; dup {
			c.index.Clear()
			return fmt.Errorf("snapshot mismatch: duplicate id %s", item.ID)
		}
		idToSlot[item.ID] = i
		vec, err := c.index.Reconstruct(i)
		if err != nil {
			c.index.Clear()
			return fmt.Errorf("reconstruct slot %d: %w", i, err)
		}
		item.Vector = vec
	}
	c.items = items
	c.idToSlot = idToSlot
	return nil
}
