package refine

import (
	"fmt"
	"math"

	"github.com/hyperjump/miru/pkg/utils"
)

// CompositionMethod selects how a text modification vector is blended into a
// query vector. Rocchio and composition are deliberately separate mechanisms:
// Rocchio moves toward/away from result vectors, composition injects the
// semantics of a text instruction.
type CompositionMethod string

const (
	// MethodAdditive nudges the query in the text direction: q + λ·t.
	MethodAdditive CompositionMethod = "additive"
	// MethodInterpolation blends linearly: (1−α)·q + α·t. Strong override.
	MethodInterpolation CompositionMethod = "interpolation"
	// MethodResidual injects only the component of t orthogonal to q,
	// preserving the query's main content: q + s·(t − (t·q)q).
	MethodResidual CompositionMethod = "residual"
	// MethodAttention reweights per dimension by text magnitude.
	MethodAttention CompositionMethod = "attention"
)

// Aggregation selects how multiple text vectors are combined in ComposeMultiple.
type Aggregation string

const (
	// AggregateSequential folds the composition across texts in order.
	AggregateSequential Aggregation = "sequential"
	// AggregateAverage averages the text vectors first, then composes once.
	// Not equivalent to sequential for two or more texts.
	AggregateAverage Aggregation = "average"
)

// Default composition constants.
const (
	DefaultAdditiveLambda       = 0.5
	DefaultInterpolationAlpha   = 0.6
	DefaultResidualStrength     = 0.8
	DefaultAttentionTemperature = 1.0
)

// Composer blends query vectors with text-derived modification vectors.
type Composer struct {
	AdditiveLambda       float64
	InterpolationAlpha   float64
	ResidualStrength     float64
	AttentionTemperature float64
}

// NewComposer creates a composer with the given parameters, taken as-is
// (λ=0 makes additive composition a no-op on purpose). Defaulting of unset
// parameters belongs to the config layer.
func NewComposer(lambda, alpha, strength, temperature float64) *Composer {
	return &Composer{
		AdditiveLambda:       lambda,
		InterpolationAlpha:   alpha,
		ResidualStrength:     strength,
		AttentionTemperature: temperature,
	}
}

// NewDefaultComposer creates a composer with the standard parameters.
func NewDefaultComposer() *Composer {
	return &Composer{
		AdditiveLambda:       DefaultAdditiveLambda,
		InterpolationAlpha:   DefaultInterpolationAlpha,
		ResidualStrength:     DefaultResidualStrength,
		AttentionTemperature: DefaultAttentionTemperature,
	}
}

// Compose blends text into query with the given method. Both inputs are
// re-normalized before composing and the output is re-normalized (a zero-norm
// result is returned as-is, the degenerate case shared with Rocchio).
func (c *Composer) Compose(query, text []float32, method CompositionMethod) ([]float32, error) {
	if len(query) != len(text) {
		return nil, fmt.Errorf("query and text dimension mismatch: %d vs %d", len(query), len(text))
	}
	q := utils.NormalizedCopy(query)
	t := utils.NormalizedCopy(text)

	var out []float32
	switch method {
	case MethodAdditive:
		out = c.additive(q, t)
	case MethodInterpolation:
		out = c.interpolation(q, t)
	case MethodResidual:
		out = c.residual(q, t)
	case MethodAttention:
		out = c.attention(q, t)
	default:
		return nil, fmt.Errorf("unknown composition method: %s", method)
	}
	utils.NormalizeL2(out)
	return out, nil
}

// ComposeMultiple blends several text vectors into query. Sequential
// aggregation applies Compose once per text in order; average aggregation
// averages the texts first and composes once. With no texts the normalized
// query is returned unchanged.
func (c *Composer) ComposeMultiple(query []float32, texts [][]float32, method CompositionMethod, agg Aggregation) ([]float32, error) {
	if len(texts) == 0 {
		return utils.NormalizedCopy(query), nil
	}
	switch agg {
	case AggregateAverage:
		return c.Compose(query, centroid(texts, len(query)), method)
	case AggregateSequential, "":
		result := query
		for _, text := range texts {
			var err error
			result, err = c.Compose(result, text, method)
			if err != nil {
				return nil, err
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unknown aggregation: %s", agg)
	}
}

func (c *Composer) additive(q, t []float32) []float32 {
	lambda := float32(c.AdditiveLambda)
	out := make([]float32, len(q))
	for i := range q {
		out[i] = q[i] + lambda*t[i]
	}
	return out
}

func (c *Composer) interpolation(q, t []float32) []float32 {
	alpha := float32(c.InterpolationAlpha)
	out := make([]float32, len(q))
	for i := range q {
		out[i] = (1-alpha)*q[i] + alpha*t[i]
	}
	return out
}

func (c *Composer) residual(q, t []float32) []float32 {
	dot := float32(0)
	for i := range q {
		dot += t[i] * q[i]
	}
	strength := float32(c.ResidualStrength)
	out := make([]float32, len(q))
	for i := range q {
		// residual = t − (t·q)q, orthogonal to q
		out[i] = q[i] + strength*(t[i]-dot*q[i])
	}
	return out
}

// attention derives a per-dimension influence from the text magnitudes:
// larger |t_i| means the text modifies that dimension more. Weights are
// exp(|t_i|/T) scaled to mean 1 and clipped to [0.5, 2.0]; influence maps
// them to [0.25, 0.75] so neither side ever fully overrides the other.
func (c *Composer) attention(q, t []float32) []float32 {
	n := len(t)
	weights := make([]float64, n)
	var sum float64
	for i, v := range t {
		weights[i] = math.Exp(math.Abs(float64(v)) / c.AttentionTemperature)
		sum += weights[i]
	}
	out := make([]float32, n)
	for i := range weights {
		w := weights[i] / sum * float64(n)
		w = clip(w, 0.5, 2.0)
		influence := clip((w-1.0)/2.0+0.5, 0.25, 0.75)
		out[i] = float32((1-influence)*float64(q[i]) + influence*float64(t[i]))
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
