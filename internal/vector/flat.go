package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatIndex is an exact inner-product index over dense float32 vectors.
// Storage is append-only: vector i lives at slot i forever. Brute-force
// search is fine for the corpus sizes this serves (tens of thousands).
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates a flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Dimensions returns the configured vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add appends copies of the given vectors. The first vector receives the
// current Count() as its slot.
func (f *FlatIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search returns the top-k slots by inner product, descending. Equal scores
// keep ascending slot order (sort is stable over the slot-ordered input).
func (f *FlatIndex) Search(query []float32, k int) ([]float64, []int, error) {
	if len(query) != f.dimensions {
		return nil, nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil, nil
	}
	type scored struct {
		slot  int
		score float64
	}
	all := make([]scored, len(f.vectors))
	for i, vec := range f.vectors {
		var dot float64
		for j := 0; j < f.dimensions; j++ {
			dot += float64(query[j] * vec[j])
		}
		all[i] = scored{slot: i, score: dot}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if k > len(all) {
		k = len(all)
	}
	scores := make([]float64, k)
	slots := make([]int, k)
	for i := 0; i < k; i++ {
		scores[i] = all[i].score
		slots[i] = all[i].slot
	}
	return scores, slots, nil
}

// Reconstruct returns a copy of the vector at slot.
func (f *FlatIndex) Reconstruct(slot int) ([]float32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if slot < 0 || slot >= len(f.vectors) {
		return nil, fmt.Errorf("slot %d out of range [0, %d)", slot, len(f.vectors))
	}
	out := make([]float32, f.dimensions)
	copy(out, f.vectors[slot])
	return out, nil
}

// ReconstructAll returns copies of all vectors in slot order.
func (f *FlatIndex) ReconstructAll() [][]float32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([][]float32, len(f.vectors))
	for i, v := range f.vectors {
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		out[i] = vec
	}
	return out
}

// Count returns the number of stored vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Clear drops all vectors; subsequent Adds assign slots from 0 again.
func (f *FlatIndex) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = f.vectors[:0]
}

// Save persists the index to path. Directory is created if needed.
// Format: dimensions (4), n (4), then n vectors of dimensions*4 bytes, little-endian.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer file.Close()
	if err := binary.Write(file, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(len(f.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range f.vectors {
		if _, err := file.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. A missing file leaves the index unchanged.
func (f *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	var dim, n uint32
	if err := binary.Read(file, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != f.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, f.dimensions)
	}
	if err := binary.Read(file, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, f.dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(file, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = vectors
	return nil
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
