package vector

import (
	"math"
	"path/filepath"
	"testing"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Count() != 3 {
		t.Errorf("Count=%d", idx.Count())
	}

	scores, slots, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 results, got %d", len(slots))
	}
	if slots[0] != 0 {
		t.Errorf("top slot should be 0, got %d", slots[0])
	}
	if scores[0] < scores[1] {
		t.Error("scores must be non-increasing")
	}
}

func TestFlatIndex_SlotsAreStable(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	_ = idx.Add([][]float32{{1, 0}, {0, 1}})
	before, err := idx.Reconstruct(0)
	if err != nil {
		t.Fatal(err)
	}
	_ = idx.Add([][]float32{{0.5, 0.5}, {-1, 0}})
	after, err := idx.Reconstruct(0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("slot 0 changed after second batch: %v vs %v", before, after)
		}
	}
	if idx.Count() != 4 {
		t.Errorf("Count=%d", idx.Count())
	}
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFlatIndex(3)
	if err := idx.Add([][]float32{{1, 0}}); err == nil {
		t.Error("expected error for short vector")
	}
	if _, _, err := idx.Search([]float32{1, 0}, 1); err == nil {
		t.Error("expected error for short query")
	}
}

func TestFlatIndex_SearchEmpty(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	scores, slots, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 0 || len(slots) != 0 {
		t.Errorf("empty index should return no results, got %d", len(slots))
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.index")
	idx, _ := NewFlatIndex(2)
	_ = idx.Add([][]float32{{0.6, 0.8}, {1, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewFlatIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Count() != 2 {
		t.Fatalf("Count=%d", loaded.Count())
	}
	vec, err := loaded.Reconstruct(0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-7 || math.Abs(float64(vec[1])-0.8) > 1e-7 {
		t.Errorf("round-trip vector: %v", vec)
	}
}

func TestFlatIndex_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.index")
	idx, _ := NewFlatIndex(2)
	_ = idx.Add([][]float32{{1, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewFlatIndex(3)
	if err := other.Load(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestFlatIndex_LoadMissingFile(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.index")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestFlatIndex_Clear(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	_ = idx.Add([][]float32{{1, 0}})
	idx.Clear()
	if idx.Count() != 0 {
		t.Errorf("Count=%d after Clear", idx.Count())
	}
	_ = idx.Add([][]float32{{0, 1}})
	vec, err := idx.Reconstruct(0)
	if err != nil {
		t.Fatal(err)
	}
	if vec[1] != 1 {
		t.Errorf("slot assignment should restart at 0, got %v", vec)
	}
}

func TestInnerProduct(t *testing.T) {
	if got := InnerProduct([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal: %f", got)
	}
	if got := InnerProduct([]float32{1, 0}, []float32{1, 0}); got != 1 {
		t.Errorf("identical: %f", got)
	}
	if got := InnerProduct([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("length mismatch should be 0, got %f", got)
	}
}
