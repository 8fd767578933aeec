package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/miru/pkg/utils"
)

const defaultRequestTimeout = 30 * time.Second

// RemoteEmbedder calls an embedding oracle service (e.g. a CLIP server) over
// HTTP. Expected endpoints:
//
//	POST {base}/encode/text  {"text": "..."}        -> {"embedding": [...]}
//	POST {base}/encode/image <raw image bytes>      -> {"embedding": [...]}
type RemoteEmbedder struct {
	baseURL    string
	dimensions int
	client     *http.Client
}

// NewRemoteEmbedder creates a client for the oracle at baseURL. A zero
// timeout uses the default.
func NewRemoteEmbedder(baseURL string, dimensions int, timeout time.Duration) (*RemoteEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &RemoteEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type textEncodeRequest struct {
	Text string `json:"text"`
}

type encodeResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EncodeText embeds a text string via the oracle.
func (r *RemoteEmbedder) EncodeText(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(textEncodeRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return r.encode(ctx, r.baseURL+"/encode/text", "application/json", bytes.NewReader(body))
}

// EncodeImage embeds raw image bytes via the oracle.
func (r *RemoteEmbedder) EncodeImage(ctx context.Context, image []byte) ([]float32, error) {
	return r.encode(ctx, r.baseURL+"/encode/image", "application/octet-stream", bytes.NewReader(image))
}

func (r *RemoteEmbedder) encode(ctx context.Context, url, contentType string, body io.Reader) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode oracle response: %w", err)
	}
	if len(out.Embedding) != r.dimensions {
		return nil, fmt.Errorf("oracle returned dimension %d, expected %d", len(out.Embedding), r.dimensions)
	}
	// The oracle contract promises unit norm; enforce it anyway.
	utils.NormalizeL2(out.Embedding)
	return out.Embedding, nil
}

// Dimensions returns the configured embedding dimension.
func (r *RemoteEmbedder) Dimensions() int {
	return r.dimensions
}

// Close is a no-op for RemoteEmbedder.
func (r *RemoteEmbedder) Close() error {
	return nil
}
