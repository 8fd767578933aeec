package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteEmbedder_EncodeText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/encode/text" {
			t.Errorf("path: %s", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Text != "red dress" {
			t.Errorf("text: %q", req.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string][]float32{"embedding": {3, 4}})
	}))
	defer srv.Close()

	emb, err := NewRemoteEmbedder(srv.URL, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	vec, err := emb.EncodeText(context.Background(), "red dress")
	if err != nil {
		t.Fatal(err)
	}
	// Defensive normalization of the oracle response.
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("got %v", vec)
	}
}

func TestRemoteEmbedder_EncodeImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/encode/image" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
			t.Errorf("content type: %s", ct)
		}
		_ = json.NewEncoder(w).Encode(map[string][]float32{"embedding": {0, 1}})
	}))
	defer srv.Close()

	emb, _ := NewRemoteEmbedder(srv.URL, 2, 0)
	vec, err := emb.EncodeImage(context.Background(), []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatal(err)
	}
	if vec[1] != 1 {
		t.Errorf("got %v", vec)
	}
}

func TestRemoteEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]float32{"embedding": {1, 2, 3}})
	}))
	defer srv.Close()

	emb, _ := NewRemoteEmbedder(srv.URL, 2, 0)
	if _, err := emb.EncodeText(context.Background(), "x"); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestRemoteEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	emb, _ := NewRemoteEmbedder(srv.URL, 2, 0)
	if _, err := emb.EncodeText(context.Background(), "x"); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.EncodeText(ctx, "stripes")
	b, _ := e.EncodeText(ctx, "stripes")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should embed identically")
		}
	}
	c, _ := e.EncodeText(ctx, "dots")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(32)
	vec, _ := e.EncodeText(context.Background(), "anything")
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("norm %f", math.Sqrt(sum))
	}
}
