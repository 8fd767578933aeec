package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder is a deterministic embedder for tests and development. The
// same input always gets the same unit-norm embedding, derived from a hash of
// the content.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of
// the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EncodeText returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	return e.fromSeed(hashBytes([]byte(text))), nil
}

// EncodeImage returns a deterministic embedding based on the image bytes.
func (e *MockEmbedder) EncodeImage(ctx context.Context, image []byte) ([]float32, error) {
	return e.fromSeed(hashBytes(image)), nil
}

func (e *MockEmbedder) fromSeed(seed uint64) []float32 {
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(seed%10000)*float64(i+1))*0.1 + 0.01)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
