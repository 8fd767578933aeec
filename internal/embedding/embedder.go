// Package embedding provides clients for the embedding oracle and caching.
package embedding

import "context"

// Embedder produces unit-norm embedding vectors for text and images. The
// oracle contract: both methods return vectors of Dimensions() length with
// Euclidean norm 1.
type Embedder interface {
	EncodeText(ctx context.Context, text string) ([]float32, error)
	EncodeImage(ctx context.Context, image []byte) ([]float32, error)
	Dimensions() int
	Close() error
}
