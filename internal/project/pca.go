// Package project reduces high-dimensional embeddings to 2-D points for
// trajectory visualization.
package project

import (
	"fmt"
	"math"
)

// Reducer fits on a set of vectors and projects vectors to 2-D points.
// Implementations keep no state beyond a single Fit/Transform pair; callers
// construct a fresh reducer per projection.
type Reducer interface {
	Fit(vectors [][]float32) error
	Transform(vectors [][]float32) ([][2]float64, error)
}

const (
	powerIterations = 100
	convergenceEps  = 1e-9
)

// PCA is a 2-component principal component analysis. Components are found by
// orthogonal (subspace) iteration on the centered data, which avoids forming
// the D×D covariance matrix for large embedding dimensions.
type PCA struct {
	mean       []float64
	components [2][]float64
	fitted     bool
}

// NewPCA returns an unfitted 2-component PCA.
func NewPCA() *PCA {
	return &PCA{}
}

// Fit computes the mean and the top-2 principal directions of vectors.
// At least 2 vectors of dimension >= 2 are required for a 2-D fit.
func (p *PCA) Fit(vectors [][]float32) error {
	if len(vectors) < 2 {
		return fmt.Errorf("pca fit requires at least 2 vectors, got %d", len(vectors))
	}
	dim := len(vectors[0])
	if dim < 2 {
		return fmt.Errorf("pca fit requires dimension >= 2, got %d", dim)
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("inconsistent vector dimensions: %d vs %d", len(v), dim)
		}
	}

	p.mean = make([]float64, dim)
	for _, v := range vectors {
		for i, x := range v {
			p.mean[i] += float64(x)
		}
	}
	for i := range p.mean {
		p.mean[i] /= float64(len(vectors))
	}

	centered := make([][]float64, len(vectors))
	for i, v := range vectors {
		row := make([]float64, dim)
		for j, x := range v {
			row[j] = float64(x) - p.mean[j]
		}
		centered[i] = row
	}

	// Deterministic, linearly independent starting basis.
	u := make([]float64, dim)
	w := make([]float64, dim)
	for i := 0; i < dim; i++ {
		u[i] = 1.0 / math.Sqrt(float64(i+1))
		w[i] = 1.0 / float64(i+2)
	}
	normalizeF64(u)
	orthonormalize(w, u)

	var prev float64
	for iter := 0; iter < powerIterations; iter++ {
		u2 := covApply(centered, u)
		w2 := covApply(centered, w)
		normalizeF64(u2)
		orthonormalize(w2, u2)
		delta := 1 - math.Abs(dotF64(u, u2))
		u, w = u2, w2
		if math.Abs(delta-prev) < convergenceEps {
			break
		}
		prev = delta
	}

	p.components = [2][]float64{u, w}
	p.fitted = true
	return nil
}

// Transform projects vectors onto the fitted components.
func (p *PCA) Transform(vectors [][]float32) ([][2]float64, error) {
	if !p.fitted {
		return nil, fmt.Errorf("pca transform called before fit")
	}
	out := make([][2]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != len(p.mean) {
			return nil, fmt.Errorf("vector dimension %d does not match fit dimension %d", len(v), len(p.mean))
		}
		var x, y float64
		for j, c := range v {
			centered := float64(c) - p.mean[j]
			x += centered * p.components[0][j]
			y += centered * p.components[1][j]
		}
		out[i] = [2]float64{x, y}
	}
	return out, nil
}

// covApply computes (XᵀX)v / n without materializing XᵀX.
func covApply(centered [][]float64, v []float64) []float64 {
	dim := len(v)
	out := make([]float64, dim)
	for _, row := range centered {
		var dot float64
		for j := range row {
			dot += row[j] * v[j]
		}
		for j := range row {
			out[j] += dot * row[j]
		}
	}
	n := float64(len(centered))
	for j := range out {
		out[j] /= n
	}
	return out
}

func dotF64(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func normalizeF64(v []float64) {
	norm := math.Sqrt(dotF64(v, v))
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// orthonormalize removes the u component from v and normalizes (Gram-Schmidt).
func orthonormalize(v, u []float64) {
	dot := dotF64(v, u)
	for i := range v {
		v[i] -= dot * u[i]
	}
	normalizeF64(v)
}
