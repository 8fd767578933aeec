// Package session tracks per-session retrieval history: the ordered query
// vectors, result sets, and feedback that make iterative refinement
// well-defined and reproducible.
package session

import (
	"time"

	"github.com/hyperjump/miru/internal/models"
)

// SourceKind records what produced an iteration's query vector.
type SourceKind string

const (
	SourceText           SourceKind = "text"
	SourceImage          SourceKind = "image"
	SourceFeedback       SourceKind = "feedback"
	SourcePseudoFeedback SourceKind = "pseudo_feedback"
)

// Iteration is one recorded retrieval round. Immutable once recorded, except
// for the feedback fields which the following round back-fills exactly once
// (annotating iteration N with the feedback given on N's results).
type Iteration struct {
	Index        int        `json:"index"`
	QueryVector  []float32  `json:"-"`
	Source       SourceKind `json:"source"`
	ResultIDs    []string   `json:"result_ids"`
	PositiveIDs  []string   `json:"positive_ids,omitempty"`
	NegativeIDs  []string   `json:"negative_ids,omitempty"`
	TextFeedback string     `json:"text_feedback,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Session owns its iterations exclusively; they are destroyed with it.
// Iterations are append-only and contiguously indexed from 1.
type Session struct {
	ID         string       `json:"id"`
	CreatedAt  time.Time    `json:"created_at"`
	Iterations []*Iteration `json:"iterations"`
}

// CurrentQueryVector returns a copy of the last iteration's query vector, or
// nil for an empty session.
func (s *Session) CurrentQueryVector() []float32 {
	if len(s.Iterations) == 0 {
		return nil
	}
	last := s.Iterations[len(s.Iterations)-1].QueryVector
	out := make([]float32, len(last))
	copy(out, last)
	return out
}

// QueryVectors returns the query vectors of all iterations in order.
func (s *Session) QueryVectors() [][]float32 {
	out := make([][]float32, len(s.Iterations))
	for i, it := range s.Iterations {
		out[i] = it.QueryVector
	}
	return out
}

// FeedbackCounts sums the explicit judgments across all iterations.
func (s *Session) FeedbackCounts() models.FeedbackCounts {
	var counts models.FeedbackCounts
	for _, it := range s.Iterations {
		counts.Positive += len(it.PositiveIDs)
		counts.Negative += len(it.NegativeIDs)
	}
	return counts
}
