// Package collection owns the indexed corpus: embedding vectors in the
// nearest-neighbor engine plus id and display-metadata bookkeeping. The id to
// slot mapping is a stable bijection for the process lifetime; slots are
// append-only and never compacted.
package collection

import (
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/vector"
	"github.com/hyperjump/miru/pkg/utils"
)

// Collection wraps a vector.Index with identifier bookkeeping and enforces
// the unit-norm invariant on every stored vector.
//
// A single writer lock serializes Insert against reads that depend on slot
// stability; reads run concurrently with each other.
type Collection struct {
	mu       sync.RWMutex
	dim      int
	index    vector.Index
	items    []*models.IndexedItem // slot-ordered
	idToSlot map[string]int
}

// New creates an empty collection over the given engine.
func New(dim int, index vector.Index) (*Collection, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if count := index.Count(); count != 0 {
		return nil, fmt.Errorf("engine must start empty, has %d vectors (use Restore)", count)
	}
	return &Collection{
		dim:      dim,
		index:    index,
		items:    make([]*models.IndexedItem, 0),
		idToSlot: make(map[string]int),
	}, nil
}

// Dimensions returns the configured vector dimension.
func (c *Collection) Dimensions() int {
	return c.dim
}

// Insert appends a batch of items. The batch is all-or-nothing: any
// validation failure (length mismatch, bad dimension, duplicate id within
// the batch or against existing items) leaves the collection untouched.
// Vectors are defensively re-normalized before storage.
func (c *Collection) Insert(vectors [][]float32, ids []string, metadata []map[string]interface{}) error {
	if len(vectors) != len(ids) || len(ids) != len(metadata) {
		return fmt.Errorf("%w: vectors/ids/metadata length mismatch: %d/%d/%d",
			models.ErrInvalidArgument, len(vectors), len(ids), len(metadata))
	}
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id at position %d", models.ErrInvalidArgument, i)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate id in batch: %s", models.ErrInvalidArgument, id)
		}
		seen[id] = true
		if len(vectors[i]) != c.dim {
			return fmt.Errorf("%w: vector for %s has dimension %d, expected %d",
				models.ErrInvalidArgument, id, len(vectors[i]), c.dim)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if _, exists := c.idToSlot[id]; exists {
			return fmt.Errorf("%w: id already indexed: %s", models.ErrInvalidArgument, id)
		}
	}

	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		normalized[i] = utils.NormalizedCopy(v)
	}

	startSlot := c.index.Count()
	if err := c.index.Add(normalized); err != nil {
		return fmt.Errorf("engine add: %w", err)
	}
	now := time.Now()
	for i, id := range ids {
		slot := startSlot + i
		c.idToSlot[id] = slot
		c.items = append(c.items, &models.IndexedItem{
			ID:        id,
			Vector:    normalized[i],
			Metadata:  metadata[i],
			Slot:      slot,
			CreatedAt: now,
		})
	}
	return nil
}

// Search returns up to topK items by descending inner product against the
// query. topK is clamped to [0, TotalCount]; an empty collection returns no
// results. The query must match the collection dimension and is expected to
// be pre-normalized by the caller.
func (c *Collection) Search(query []float32, topK int) ([]*models.ItemResult, error) {
	if len(query) != c.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d",
			models.ErrInvalidArgument, len(query), c.dim)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if topK < 0 {
		topK = 0
	}
	if topK > len(c.items) {
		topK = len(c.items)
	}
	scores, slots, err := c.index.Search(query, topK)
	if err != nil {
		return nil, fmt.Errorf("engine search: %w", err)
	}
	results := make([]*models.ItemResult, 0, len(slots))
	for i, slot := range slots {
		item := c.items[slot]
		results = append(results, &models.ItemResult{
			ID:       item.ID,
			Score:    scores[i],
			Metadata: item.Metadata,
		})
	}
	return results, nil
}

// VectorOf reconstructs the stored (normalized) vector for id, exactly as
// stored so feedback computation reuses the same values.
func (c *Collection) VectorOf(id string) ([]float32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, ok := c.idToSlot[id]
	if !ok {
		return nil, fmt.Errorf("%w: item %s", models.ErrNotFound, id)
	}
	vec, err := c.index.Reconstruct(slot)
	if err != nil {
		return nil, fmt.Errorf("reconstruct slot %d: %w", slot, err)
	}
	return vec, nil
}

// VectorsOf resolves the vectors for ids, silently skipping unknown ids; the
// returned slice may be shorter than ids.
func (c *Collection) VectorsOf(ids []string) [][]float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]float32, 0, len(ids))
	for _, id := range ids {
		slot, ok := c.idToSlot[id]
		if !ok {
			continue
		}
		vec, err := c.index.Reconstruct(slot)
		if err != nil {
			continue
		}
		out = append(out, vec)
	}
	return out
}

// AllVectors returns all stored vectors in slot order, for visualization
// sampling.
func (c *Collection) AllVectors() [][]float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.ReconstructAll()
}

// TotalCount returns the number of indexed items.
func (c *Collection) TotalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Items returns a snapshot of all item records in slot order.
func (c *Collection) Items() []*models.IndexedItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.IndexedItem, len(c.items))
	copy(out, c.items)
	return out
}

// Clear removes everything; slot assignment restarts at 0.
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Clear()
	c.items = c.items[:0]
	c.idToSlot = make(map[string]int)
}
