package models

// ItemResult is a single ranked hit: inner-product score in [-1, 1].
type ItemResult struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TrajectoryPoint is a 2-D projection of one iteration's query vector.
type TrajectoryPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Iteration int     `json:"iteration"`
}

// Point2D is a projected corpus vector (no iteration attached).
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SearchResponse is returned by every retrieval round (search, feedback,
// pseudo feedback): the ranked results plus the session's query trajectory.
type SearchResponse struct {
	SessionID   string            `json:"session_id"`
	Iteration   int               `json:"iteration"`
	Results     []*ItemResult     `json:"results"`
	Trajectory  []TrajectoryPoint `json:"query_vectors"`
	TotalItems  int               `json:"total_items"`
	QueryTimeMs int64             `json:"query_time_ms"`
}

// FeedbackCounts aggregates judgments across a session's iterations.
type FeedbackCounts struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// SessionInfo describes a session for inspection.
type SessionInfo struct {
	SessionID      string         `json:"session_id"`
	Iterations     int            `json:"iterations"`
	LastSource     string         `json:"last_source"`
	FeedbackCounts FeedbackCounts `json:"feedback_counts"`
}

// TrajectoryResponse is the visualization payload: the session's query
// trajectory and, optionally, a projected corpus sample for context.
type TrajectoryResponse struct {
	QueryVectors  []TrajectoryPoint `json:"query_vectors"`
	CorpusVectors []Point2D         `json:"corpus_vectors,omitempty"`
	Iterations    int               `json:"iterations"`
}

// IngestResponse reports a bulk insertion.
type IngestResponse struct {
	Ingested   int      `json:"ingested"`
	IDs        []string `json:"ids"`
	TotalItems int      `json:"total_items"`
}

// MetadataSearchResult is one keyword hit over item metadata.
type MetadataSearchResult struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataSearchResponse is the response for attribute search.
type MetadataSearchResponse struct {
	Query   string                  `json:"query"`
	Results []*MetadataSearchResult `json:"results"`
	Total   int                     `json:"total"`
}
