// Package retrieval orchestrates the interactive search loop: encoding
// queries, running vector search, refining session queries from feedback,
// and recording iteration history.
package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/collection"
	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/keyword"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/refine"
	"github.com/hyperjump/miru/internal/session"
	"github.com/hyperjump/miru/internal/storage"
)

// Config holds the coordinator's search limits.
type Config struct {
	DefaultTopK int
	MaxTopK     int
	PseudoTopM  int
	// SampleSize caps the number of corpus vectors projected for the
	// trajectory visualization.
	SampleSize int
}

// Coordinator ties the embedding oracle, vector collection, session store,
// and metadata index into the retrieval operations the API exposes.
type Coordinator struct {
	embedder   embedding.Embedder
	collection *collection.Collection
	sessions   *session.Store
	meta       *keyword.MetadataIndex
	store      storage.Store
	indexPath  string
	rocchio    *refine.Rocchio
	composer   *refine.Composer
	cfg        Config
	logger     *zap.Logger
}

// NewCoordinator wires the retrieval components together. meta and store may
// be nil in tests; persistence and keyword search are then skipped.
func NewCoordinator(
	embedder embedding.Embedder,
	coll *collection.Collection,
	sessions *session.Store,
	meta *keyword.MetadataIndex,
	store storage.Store,
	indexPath string,
	rocchio *refine.Rocchio,
	composer *refine.Composer,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 100
	}
	if cfg.PseudoTopM <= 0 {
		cfg.PseudoTopM = 3
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 200
	}
	return &Coordinator{
		embedder:   embedder,
		collection: coll,
		sessions:   sessions,
		meta:       meta,
		store:      store,
		indexPath:  indexPath,
		rocchio:    rocchio,
		composer:   composer,
		cfg:        cfg,
		logger:     logger,
	}
}

// SearchText starts or continues a session with a text query. The query is
// encoded and becomes the session's new current query vector.
func (c *Coordinator) SearchText(ctx context.Context, req *models.TextSearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(c.cfg.DefaultTopK, c.cfg.MaxTopK); err != nil {
		return nil, err
	}
	start := time.Now()
	queryVec, err := c.embedder.EncodeText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	sessionID, created := c.sessions.GetOrCreate(req.SessionID)
	if created {
		c.logger.Debug("session created", zap.String("session_id", sessionID))
	}
	return c.runRound(sessionID, queryVec, session.SourceText, req.TopK, start)
}

// SearchImage starts or continues a session with an uploaded image.
func (c *Coordinator) SearchImage(ctx context.Context, image []byte, topK int, sessionID string) (*models.SearchResponse, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image payload is empty", models.ErrInvalidArgument)
	}
	if topK <= 0 {
		topK = c.cfg.DefaultTopK
	}
	if topK > c.cfg.MaxTopK {
		topK = c.cfg.MaxTopK
	}
	start := time.Now()
	queryVec, err := c.embedder.EncodeImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	sessionID, _ = c.sessions.GetOrCreate(sessionID)
	return c.runRound(sessionID, queryVec, session.SourceImage, topK, start)
}

// RelevanceFeedback refines the session's current query from explicit
// judgments and/or a free-text modification, then re-searches.
//
// The judgments describe the previous round's results, so they are written
// back onto that iteration before the refined round is recorded.
func (c *Coordinator) RelevanceFeedback(ctx context.Context, req *models.RelevanceFeedbackRequest) (*models.SearchResponse, error) {
	if err := req.Validate(c.cfg.DefaultTopK, c.cfg.MaxTopK); err != nil {
		return nil, err
	}
	start := time.Now()
	queryVec, _, err := c.sessions.CurrentQueryVector(req.SessionID)
	if err != nil {
		return nil, err
	}
	if queryVec == nil {
		return nil, fmt.Errorf("%w: session has no query to refine", models.ErrInvalidArgument)
	}

	var positiveIDs, negativeIDs []string
	for _, item := range req.Items {
		if item.Feedback == models.FeedbackPositive {
			positiveIDs = append(positiveIDs, item.ItemID)
		} else {
			negativeIDs = append(negativeIDs, item.ItemID)
		}
	}
	positive := c.collection.VectorsOf(positiveIDs)
	negative := c.collection.VectorsOf(negativeIDs)

	refined := queryVec
	hadDocFeedback := len(positive) > 0 || len(negative) > 0
	if hadDocFeedback {
		refined = c.rocchio.Refine(queryVec, positive, negative)
	}

	if req.TextFeedback != "" {
		textVec, err := c.embedder.EncodeText(ctx, req.TextFeedback)
		if err != nil {
			return nil, fmt.Errorf("encode text feedback: %w", err)
		}
		// With document feedback the text is a gentle extra nudge on the
		// Rocchio result; alone, it steers via the component orthogonal to
		// the current query so the session does not collapse onto the text.
		method := refine.MethodResidual
		if hadDocFeedback {
			method = refine.MethodAdditive
		}
		refined, err = c.composer.Compose(refined, textVec, method)
		if err != nil {
			return nil, err
		}
	}

	if err := c.sessions.BackfillFeedback(req.SessionID, positiveIDs, negativeIDs, req.TextFeedback); err != nil {
		return nil, err
	}
	return c.runRound(req.SessionID, refined, session.SourceFeedback, req.TopK, start)
}

// PseudoFeedback refines the session's current query by assuming the top-m
// results of the previous round are relevant.
func (c *Coordinator) PseudoFeedback(ctx context.Context, req *models.PseudoFeedbackRequest) (*models.SearchResponse, error) {
	if err := req.Validate(c.cfg.PseudoTopM, c.cfg.DefaultTopK, c.cfg.MaxTopK); err != nil {
		return nil, err
	}
	start := time.Now()
	queryVec, _, err := c.sessions.CurrentQueryVector(req.SessionID)
	if err != nil {
		return nil, err
	}
	if queryVec == nil {
		return nil, fmt.Errorf("%w: session has no query to refine", models.ErrInvalidArgument)
	}
	assumedIDs, err := c.sessions.LastResultIDs(req.SessionID, req.TopM)
	if err != nil {
		return nil, err
	}
	assumed := c.collection.VectorsOf(assumedIDs)
	if len(assumed) == 0 {
		return nil, fmt.Errorf("%w: session has no results to assume relevant", models.ErrInvalidArgument)
	}

	refined := c.rocchio.PseudoRefine(queryVec, assumed, len(assumed))

	if err := c.sessions.BackfillFeedback(req.SessionID, assumedIDs, nil, ""); err != nil {
		return nil, err
	}
	return c.runRound(req.SessionID, refined, session.SourcePseudoFeedback, req.TopK, start)
}

// runRound searches with queryVec, records the iteration, and assembles the
// response with the session's projected trajectory.
func (c *Coordinator) runRound(sessionID string, queryVec []float32, source session.SourceKind, topK int, start time.Time) (*models.SearchResponse, error) {
	results, err := c.collection.Search(queryVec, topK)
	if err != nil {
		return nil, err
	}
	resultIDs := make([]string, len(results))
	for i, r := range results {
		resultIDs[i] = r.ID
	}
	iteration, err := c.sessions.RecordIteration(sessionID, queryVec, source, resultIDs, nil, nil, "")
	if err != nil {
		return nil, err
	}
	trajectory, _, err := c.sessions.ProjectTrajectory(sessionID, nil)
	if err != nil {
		c.logger.Warn("trajectory projection failed", zap.String("session_id", sessionID), zap.Error(err))
		trajectory = nil
	}
	return &models.SearchResponse{
		SessionID:   sessionID,
		Iteration:   iteration,
		Results:     results,
		Trajectory:  trajectory,
		TotalItems:  c.collection.TotalCount(),
		QueryTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// Ingest inserts a batch of items into the collection, indexes their
// metadata, and persists a snapshot. Insertion is all-or-nothing.
func (c *Coordinator) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items cannot be empty", models.ErrInvalidArgument)
	}
	vectors := make([][]float32, len(req.Items))
	ids := make([]string, len(req.Items))
	metadata := make([]map[string]interface{}, len(req.Items))
	for i, item := range req.Items {
		if err := models.ValidateMetadata(item.Metadata); err != nil {
			return nil, err
		}
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		vectors[i] = item.Vector
		ids[i] = id
		metadata[i] = item.Metadata
	}

	if err := c.collection.Insert(vectors, ids, metadata); err != nil {
		return nil, err
	}
	c.logger.Info("items ingested", zap.Int("count", len(ids)), zap.Int("total", c.collection.TotalCount()))

	if c.meta != nil {
		items := c.collection.Items()
		batch := items[len(items)-len(ids):]
		if err := c.meta.IndexBatch(ctx, batch); err != nil {
			c.logger.Warn("metadata indexing failed", zap.Error(err))
		}
	}
	c.persist(ctx)

	return &models.IngestResponse{
		Ingested:   len(ids),
		IDs:        ids,
		TotalItems: c.collection.TotalCount(),
	}, nil
}

// IngestImage encodes an uploaded image through the embedding oracle and
// inserts it as a corpus item, so a corpus can be built from raw images
// rather than precomputed vectors. An empty id mints a UUID.
func (c *Coordinator) IngestImage(ctx context.Context, image []byte, id string, metadata map[string]interface{}) (*models.IngestResponse, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image payload is empty", models.ErrInvalidArgument)
	}
	if err := models.ValidateMetadata(metadata); err != nil {
		return nil, err
	}
	vec, err := c.embedder.EncodeImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if err := c.collection.Insert([][]float32{vec}, []string{id}, []map[string]interface{}{metadata}); err != nil {
		return nil, err
	}
	c.logger.Info("image ingested", zap.String("id", id), zap.Int("total", c.collection.TotalCount()))

	if c.meta != nil {
		items := c.collection.Items()
		if err := c.meta.IndexBatch(ctx, items[len(items)-1:]); err != nil {
			c.logger.Warn("metadata indexing failed", zap.Error(err))
		}
	}
	c.persist(ctx)

	return &models.IngestResponse{
		Ingested:   1,
		IDs:        []string{id},
		TotalItems: c.collection.TotalCount(),
	}, nil
}

// persist snapshots the collection. The in-memory state is authoritative, so
// a failed snapshot is logged rather than failing the ingest; retrying the
// request would hit duplicate-id rejection.
func (c *Coordinator) persist(ctx context.Context) {
	if c.store == nil || c.indexPath == "" {
		return
	}
	if err := c.collection.Snapshot(ctx, c.indexPath, c.store); err != nil {
		c.logger.Error("snapshot failed", zap.Error(err))
	}
}

// IngestBatchFile reads a JSON-lines batch file (one item per line) and
// ingests it. Malformed lines are skipped with a warning.
func (c *Coordinator) IngestBatchFile(ctx context.Context, path string) (*models.IngestResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var req models.IngestRequest
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item models.ItemInput
		if err := json.Unmarshal(line, &item); err != nil {
			c.logger.Warn("skipping malformed batch line", zap.String("path", path), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		req.Items = append(req.Items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: batch file %s has no items", models.ErrInvalidArgument, path)
	}
	return c.Ingest(ctx, &req)
}

// MetadataSearch runs a keyword query over item display metadata.
func (c *Coordinator) MetadataSearch(ctx context.Context, query string, limit int) (*models.MetadataSearchResponse, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", models.ErrInvalidArgument)
	}
	if c.meta == nil {
		return &models.MetadataSearchResponse{Query: query, Results: []*models.MetadataSearchResult{}}, nil
	}
	if limit <= 0 {
		limit = c.cfg.DefaultTopK
	}
	if limit > c.cfg.MaxTopK {
		limit = c.cfg.MaxTopK
	}
	hits, err := c.meta.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.IndexedItem)
	for _, item := range c.collection.Items() {
		byID[item.ID] = item
	}
	results := make([]*models.MetadataSearchResult, 0, len(hits))
	for _, hit := range hits {
		r := &models.MetadataSearchResult{ID: hit.ID, Score: hit.Score}
		if item, ok := byID[hit.ID]; ok {
			r.Metadata = item.Metadata
		}
		results = append(results, r)
	}
	return &models.MetadataSearchResponse{Query: query, Results: results, Total: len(results)}, nil
}

// SessionInfo returns session metadata for inspection.
func (c *Coordinator) SessionInfo(id string) (*models.SessionInfo, error) {
	return c.sessions.Info(id)
}

// Trajectory projects the session's query history to 2-D, optionally with a
// random corpus sample for spatial context. sampleSize <= 0 uses the
// configured default.
func (c *Coordinator) Trajectory(id string, includeCorpus bool, sampleSize int) (*models.TrajectoryResponse, error) {
	var reference [][]float32
	if includeCorpus {
		if sampleSize <= 0 {
			sampleSize = c.cfg.SampleSize
		}
		reference = c.sampleCorpus(sampleSize)
	}
	points, corpus, err := c.sessions.ProjectTrajectory(id, reference)
	if err != nil {
		return nil, err
	}
	return &models.TrajectoryResponse{
		QueryVectors:  points,
		CorpusVectors: corpus,
		Iterations:    len(points),
	}, nil
}

// sampleCorpus draws up to n vectors uniformly without replacement.
func (c *Coordinator) sampleCorpus(n int) [][]float32 {
	all := c.collection.AllVectors()
	if len(all) <= n {
		return all
	}
	perm := rand.Perm(len(all))
	sample := make([][]float32, n)
	for i := 0; i < n; i++ {
		sample[i] = all[perm[i]]
	}
	return sample
}

// TotalItems returns the corpus size.
func (c *Coordinator) TotalItems() int {
	return c.collection.TotalCount()
}

// SessionCount returns the number of live sessions.
func (c *Coordinator) SessionCount() int {
	return c.sessions.Count()
}

// Dimensions returns the embedding dimensionality.
func (c *Coordinator) Dimensions() int {
	return c.collection.Dimensions()
}
