package models

import "fmt"

// FeedbackKind marks a feedback item as relevant or non-relevant.
type FeedbackKind string

const (
	FeedbackPositive FeedbackKind = "positive"
	FeedbackNegative FeedbackKind = "negative"
)

// TextSearchRequest starts or continues a session with a text query.
type TextSearchRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks the query and clamps TopK into [1, maxTopK], applying
// defaultTopK when unset.
func (r *TextSearchRequest) Validate(defaultTopK, maxTopK int) error {
	if r.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	r.TopK = clampTopK(r.TopK, defaultTopK, maxTopK)
	return nil
}

// FeedbackItem is one relevance judgment on a result item.
type FeedbackItem struct {
	ItemID   string       `json:"item_id"`
	Feedback FeedbackKind `json:"feedback"`
}

// RelevanceFeedbackRequest refines the session's current query from explicit
// judgments and/or a free-text modification.
type RelevanceFeedbackRequest struct {
	SessionID    string         `json:"session_id"`
	Items        []FeedbackItem `json:"feedback_items,omitempty"`
	TextFeedback string         `json:"text_feedback,omitempty"`
	TopK         int            `json:"top_k,omitempty"`
}

// Validate requires a session id and at least one feedback signal.
func (r *RelevanceFeedbackRequest) Validate(defaultTopK, maxTopK int) error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidArgument)
	}
	if len(r.Items) == 0 && r.TextFeedback == "" {
		return fmt.Errorf("%w: at least one type of feedback is required", ErrInvalidArgument)
	}
	for _, item := range r.Items {
		if item.Feedback != FeedbackPositive && item.Feedback != FeedbackNegative {
			return fmt.Errorf("%w: unknown feedback kind %q", ErrInvalidArgument, item.Feedback)
		}
	}
	r.TopK = clampTopK(r.TopK, defaultTopK, maxTopK)
	return nil
}

// PseudoFeedbackRequest refines the session's current query by assuming the
// top-m results of the previous round are relevant.
type PseudoFeedbackRequest struct {
	SessionID string `json:"session_id"`
	TopM      int    `json:"top_m,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
}

// Validate requires a session id and clamps TopM and TopK.
func (r *PseudoFeedbackRequest) Validate(defaultTopM, defaultTopK, maxTopK int) error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidArgument)
	}
	if r.TopM <= 0 {
		r.TopM = defaultTopM
	}
	r.TopK = clampTopK(r.TopK, defaultTopK, maxTopK)
	return nil
}

// IngestRequest is a bulk item insertion.
type IngestRequest struct {
	Items []ItemInput `json:"items"`
}

func clampTopK(topK, defaultTopK, maxTopK int) int {
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	return topK
}
