// Package refine implements query refinement: Rocchio relevance feedback and
// text-based query composition. All functions are pure over float32 vectors;
// inputs are never modified and outputs are freshly allocated.
package refine

import "github.com/hyperjump/miru/pkg/utils"

// Default Rocchio weights.
const (
	DefaultAlpha = 1.0
	DefaultBeta  = 0.75
	DefaultGamma = 0.15
)

// Rocchio shifts a query vector toward the centroid of relevant vectors and
// away from the centroid of non-relevant ones:
//
//	q' = normalize(α·q + β·mean(relevant) − γ·mean(nonRelevant))
type Rocchio struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// NewRocchio creates a Rocchio refiner with the given weights, taken as-is:
// an explicit zero is meaningful (γ=0 disables the negative-feedback pull).
// Defaulting of unset weights belongs to the config layer.
func NewRocchio(alpha, beta, gamma float64) *Rocchio {
	return &Rocchio{Alpha: alpha, Beta: beta, Gamma: gamma}
}

// NewDefaultRocchio creates a refiner with the standard weights.
func NewDefaultRocchio() *Rocchio {
	return &Rocchio{Alpha: DefaultAlpha, Beta: DefaultBeta, Gamma: DefaultGamma}
}

// Refine applies the Rocchio formula. Empty relevant/nonRelevant sets simply
// drop their term, so Refine(q, nil, nil) == normalize(α·q). If the combined
// vector has zero norm (perfectly opposing feedback) it is returned
// unnormalized rather than failing.
func (r *Rocchio) Refine(query []float32, relevant, nonRelevant [][]float32) []float32 {
	refined := make([]float32, len(query))
	alpha := float32(r.Alpha)
	for i, v := range query {
		refined[i] = alpha * v
	}
	if len(relevant) > 0 {
		beta := float32(r.Beta)
		for i, v := range centroid(relevant, len(query)) {
			refined[i] += beta * v
		}
	}
	if len(nonRelevant) > 0 {
		gamma := float32(r.Gamma)
		for i, v := range centroid(nonRelevant, len(query)) {
			refined[i] -= gamma * v
		}
	}
	utils.NormalizeL2(refined)
	return refined
}

// PseudoRefine is blind feedback: the first min(m, len(topResults)) vectors
// are assumed relevant and fed to Refine with no negatives.
func (r *Rocchio) PseudoRefine(query []float32, topResults [][]float32, m int) []float32 {
	if m > len(topResults) {
		m = len(topResults)
	}
	if m < 0 {
		m = 0
	}
	return r.Refine(query, topResults[:m], nil)
}

func centroid(vectors [][]float32, dim int) []float32 {
	out := make([]float32, dim)
	for _, vec := range vectors {
		for i := 0; i < dim && i < len(vec); i++ {
			out[i] += vec[i]
		}
	}
	n := float32(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}
