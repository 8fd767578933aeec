package project

import (
	"math"
	"testing"
)

func TestPCA_FirstComponentFollowsVariance(t *testing.T) {
	// Points spread along the x axis with tiny y noise: the first principal
	// component must be (close to) the x axis.
	data := [][]float32{
		{-4, 0.1, 0},
		{-2, -0.1, 0},
		{0, 0.05, 0},
		{2, -0.05, 0},
		{4, 0.1, 0},
	}
	pca := NewPCA()
	if err := pca.Fit(data); err != nil {
		t.Fatal(err)
	}
	points, err := pca.Transform(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != len(data) {
		t.Fatalf("got %d points", len(points))
	}
	// The first coordinate must recover the x spread (up to sign).
	spread := math.Abs(points[4][0] - points[0][0])
	if spread < 7.5 {
		t.Errorf("first component missed the variance direction: spread %f", spread)
	}
	// Second coordinate stays small.
	for _, pt := range points {
		if math.Abs(pt[1]) > 1 {
			t.Errorf("second coordinate too large: %v", pt)
		}
	}
}

func TestPCA_ComponentsOrthonormal(t *testing.T) {
	data := [][]float32{
		{1, 2, 3, 4},
		{4, 3, 2, 1},
		{1, 0, 1, 0},
		{0, 1, 0, 1},
		{2, 2, 0, 0},
	}
	pca := NewPCA()
	if err := pca.Fit(data); err != nil {
		t.Fatal(err)
	}
	u, w := pca.components[0], pca.components[1]
	if math.Abs(dotF64(u, w)) > 1e-6 {
		t.Errorf("components not orthogonal: %f", dotF64(u, w))
	}
	if math.Abs(dotF64(u, u)-1) > 1e-6 || math.Abs(dotF64(w, w)-1) > 1e-6 {
		t.Error("components not unit norm")
	}
}

func TestPCA_FitErrors(t *testing.T) {
	pca := NewPCA()
	if err := pca.Fit([][]float32{{1, 2}}); err == nil {
		t.Error("expected error for fewer than 2 vectors")
	}
	if err := pca.Fit([][]float32{{1}, {2}}); err == nil {
		t.Error("expected error for dimension < 2")
	}
	if _, err := pca.Transform([][]float32{{1, 2}}); err == nil {
		t.Error("expected error for transform before fit")
	}
}
