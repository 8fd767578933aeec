// Package vector provides the flat inner-product nearest-neighbor engine.
package vector

// Index is the nearest-neighbor engine contract: append-only storage of
// fixed-dimension vectors addressed by slot. Slots are assigned in insertion
// order starting at 0 and are never reused or compacted, so a slot remains
// valid for the lifetime of the index (or until Clear).
type Index interface {
	// Add appends vectors in order; the first receives slot Count().
	Add(vectors [][]float32) error
	// Search returns up to k hits by descending inner product. Ties keep
	// the engine's native (slot) order.
	Search(query []float32, k int) (scores []float64, slots []int, err error)
	// Reconstruct returns the stored vector for slot, exactly as stored.
	Reconstruct(slot int) ([]float32, error)
	// ReconstructAll returns all stored vectors in slot order.
	ReconstructAll() [][]float32
	Count() int
	// Clear removes all vectors; slot assignment restarts at 0.
	Clear()
	// Save and Load persist the index; Load replaces the contents and is a
	// no-op when the file does not exist.
	Save(path string) error
	Load(path string) error
	Close() error
}
