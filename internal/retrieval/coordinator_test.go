package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/miru/internal/collection"
	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/refine"
	"github.com/hyperjump/miru/internal/session"
	"github.com/hyperjump/miru/internal/vector"
)

const testDim = 16

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	idx, err := vector.NewFlatIndex(testDim)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := collection.New(testDim, idx)
	if err != nil {
		t.Fatal(err)
	}
	return NewCoordinator(
		embedding.NewMockEmbedder(testDim),
		coll,
		session.NewStore(nil),
		nil, nil, "",
		refine.NewDefaultRocchio(),
		refine.NewDefaultComposer(),
		Config{DefaultTopK: 10, MaxTopK: 100, PseudoTopM: 3, SampleSize: 50},
		nil,
	)
}

func seedItems(t *testing.T, c *Coordinator, n int) []string {
	t.Helper()
	emb := embedding.NewMockEmbedder(testDim)
	req := &models.IngestRequest{}
	for i := 0; i < n; i++ {
		vec, _ := emb.EncodeText(context.Background(), string(rune('a'+i)))
		req.Items = append(req.Items, models.ItemInput{
			Vector:   vec,
			Metadata: map[string]interface{}{"label": string(rune('a' + i))},
		})
	}
	resp, err := c.Ingest(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return resp.IDs
}

func TestSearchText_CreatesSession(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 5)

	resp, err := c.SearchText(context.Background(), &models.TextSearchRequest{Query: "striped shirt"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Error("session id should be minted")
	}
	if resp.Iteration != 1 {
		t.Errorf("iteration=%d", resp.Iteration)
	}
	if len(resp.Results) != 5 {
		t.Errorf("results=%d", len(resp.Results))
	}
	if resp.TotalItems != 5 {
		t.Errorf("total=%d", resp.TotalItems)
	}
	if len(resp.Trajectory) != 1 {
		t.Errorf("trajectory points=%d", len(resp.Trajectory))
	}
}

func TestSearchText_ContinuesSession(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 3)
	ctx := context.Background()

	first, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "red"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "blue", SessionID: first.SessionID})
	if err != nil {
		t.Fatal(err)
	}
	if second.SessionID != first.SessionID {
		t.Error("session id changed")
	}
	if second.Iteration != 2 {
		t.Errorf("iteration=%d", second.Iteration)
	}
}

func TestSearchText_EmptyQuery(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.SearchText(context.Background(), &models.TextSearchRequest{})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestSearchImage(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 4)

	resp, err := c.SearchImage(context.Background(), []byte{0xFF, 0xD8, 0x01, 0x02}, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results=%d", len(resp.Results))
	}

	if _, err := c.SearchImage(context.Background(), nil, 2, ""); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty image: got %v", err)
	}
}

func TestRelevanceFeedback_RefinesAndRecords(t *testing.T) {
	c := newTestCoordinator(t)
	ids := seedItems(t, c, 5)
	ctx := context.Background()

	first, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "jacket"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := c.RelevanceFeedback(ctx, &models.RelevanceFeedbackRequest{
		SessionID: first.SessionID,
		Items: []models.FeedbackItem{
			{ItemID: ids[0], Feedback: models.FeedbackPositive},
			{ItemID: ids[1], Feedback: models.FeedbackNegative},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Iteration != 2 {
		t.Errorf("iteration=%d", resp.Iteration)
	}
	if len(resp.Trajectory) != 2 {
		t.Errorf("trajectory points=%d", len(resp.Trajectory))
	}

	// Judgments land on the first iteration, not the refined round.
	info, err := c.SessionInfo(first.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if info.FeedbackCounts.Positive != 1 || info.FeedbackCounts.Negative != 1 {
		t.Errorf("feedback counts: %+v", info.FeedbackCounts)
	}
	if info.LastSource != string(session.SourceFeedback) {
		t.Errorf("last source: %s", info.LastSource)
	}
}

func TestRelevanceFeedback_TextOnly(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 5)
	ctx := context.Background()

	first, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "jacket"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.RelevanceFeedback(ctx, &models.RelevanceFeedbackRequest{
		SessionID:    first.SessionID,
		TextFeedback: "more formal",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Iteration != 2 {
		t.Errorf("iteration=%d", resp.Iteration)
	}
}

func TestRelevanceFeedback_RequiresPriorQuery(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 2)

	_, err := c.RelevanceFeedback(context.Background(), &models.RelevanceFeedbackRequest{
		SessionID:    "nonexistent",
		TextFeedback: "anything",
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown session: got %v", err)
	}
}

func TestRelevanceFeedback_NoSignals(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.RelevanceFeedback(context.Background(), &models.RelevanceFeedbackRequest{SessionID: "s"})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestPseudoFeedback(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 5)
	ctx := context.Background()

	first, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "coat"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.PseudoFeedback(ctx, &models.PseudoFeedbackRequest{SessionID: first.SessionID, TopM: 2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Iteration != 2 {
		t.Errorf("iteration=%d", resp.Iteration)
	}

	// The assumed-relevant ids are backfilled as positives on round one.
	info, err := c.SessionInfo(first.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if info.FeedbackCounts.Positive != 2 {
		t.Errorf("positive count: %d", info.FeedbackCounts.Positive)
	}
	if info.LastSource != string(session.SourcePseudoFeedback) {
		t.Errorf("last source: %s", info.LastSource)
	}
}

func TestPseudoFeedback_NoPriorResults(t *testing.T) {
	c := newTestCoordinator(t)
	// Corpus is empty, so the first search records an iteration with no
	// results; pseudo feedback then has nothing to assume.
	first, err := c.SearchText(context.Background(), &models.TextSearchRequest{Query: "coat"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.PseudoFeedback(context.Background(), &models.PseudoFeedbackRequest{SessionID: first.SessionID})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestIngest_MintsIDs(t *testing.T) {
	c := newTestCoordinator(t)
	vec := make([]float32, testDim)
	vec[0] = 1
	resp, err := c.Ingest(context.Background(), &models.IngestRequest{
		Items: []models.ItemInput{{Vector: vec}, {ID: "explicit", Vector: vec}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Ingested != 2 || resp.TotalItems != 2 {
		t.Errorf("resp: %+v", resp)
	}
	if resp.IDs[0] == "" {
		t.Error("missing minted id")
	}
	if resp.IDs[1] != "explicit" {
		t.Errorf("explicit id lost: %v", resp.IDs)
	}
}

func TestIngest_RejectsNestedMetadata(t *testing.T) {
	c := newTestCoordinator(t)
	vec := make([]float32, testDim)
	vec[0] = 1
	_, err := c.Ingest(context.Background(), &models.IngestRequest{
		Items: []models.ItemInput{{Vector: vec, Metadata: map[string]interface{}{"nested": map[string]interface{}{"x": 1}}}},
	})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestIngest_Empty(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.Ingest(context.Background(), &models.IngestRequest{})
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestIngestImage(t *testing.T) {
	c := newTestCoordinator(t)
	ctx := context.Background()
	image := []byte{0xFF, 0xD8, 0x0A, 0x0B}

	resp, err := c.IngestImage(ctx, image, "", map[string]interface{}{"label": "coat"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Ingested != 1 || resp.TotalItems != 1 {
		t.Errorf("resp: %+v", resp)
	}
	if len(resp.IDs) != 1 || resp.IDs[0] == "" {
		t.Errorf("id should be minted: %+v", resp.IDs)
	}

	// The item's stored vector is the oracle encoding, so searching with the
	// same image must return it with a perfect self-match score.
	search, err := c.SearchImage(ctx, image, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(search.Results) != 1 || search.Results[0].ID != resp.IDs[0] {
		t.Fatalf("results: %+v", search.Results)
	}
	if search.Results[0].Score < 0.999 {
		t.Errorf("self-match score: %f", search.Results[0].Score)
	}
}

func TestIngestImage_ExplicitID(t *testing.T) {
	c := newTestCoordinator(t)
	resp, err := c.IngestImage(context.Background(), []byte{0x01, 0x02}, "img-7", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.IDs[0] != "img-7" {
		t.Errorf("id: %s", resp.IDs[0])
	}
}

func TestIngestImage_Empty(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.IngestImage(context.Background(), nil, "", nil)
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
}

func TestIngestBatchFile(t *testing.T) {
	c := newTestCoordinator(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.jsonl")
	content := `{"id":"x","vector":[1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0],"metadata":{"label":"x"}}
not json at all
{"id":"y","vector":[0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0]}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := c.IngestBatchFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Ingested != 2 {
		t.Errorf("ingested=%d", resp.Ingested)
	}
}

func TestIngestBatchFile_Missing(t *testing.T) {
	c := newTestCoordinator(t)
	if _, err := c.IngestBatchFile(context.Background(), filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTrajectory(t *testing.T) {
	c := newTestCoordinator(t)
	seedItems(t, c, 5)
	ctx := context.Background()

	first, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.SearchText(ctx, &models.TextSearchRequest{Query: "b", SessionID: first.SessionID}); err != nil {
		t.Fatal(err)
	}

	resp, err := c.Trajectory(first.SessionID, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Iterations != 2 || len(resp.QueryVectors) != 2 {
		t.Errorf("resp: %+v", resp)
	}
	if len(resp.CorpusVectors) != 5 {
		t.Errorf("corpus points=%d", len(resp.CorpusVectors))
	}

	capped, err := c.Trajectory(first.SessionID, true, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(capped.CorpusVectors) != 2 {
		t.Errorf("sample cap: %d corpus points", len(capped.CorpusVectors))
	}

	if _, err := c.Trajectory("nonexistent", false, 0); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown session: got %v", err)
	}
}
