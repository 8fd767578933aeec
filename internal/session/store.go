package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/project"
)

// Store holds all live sessions in memory. The map lock covers session
// creation and removal; each session carries its own lock so rounds against
// unrelated sessions never serialize against each other. Reaping takes the
// per-session lock too, so it cannot race an in-flight record.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	newReducer func() project.Reducer
	logger     *zap.Logger
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithReducer overrides the dimensionality reducer used for trajectory
// projection (a fresh reducer is constructed per projection).
func WithReducer(newReducer func() project.Reducer) StoreOption {
	return func(s *Store) { s.newReducer = newReducer }
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		sessions:   make(map[string]*entry),
		newReducer: func() project.Reducer { return project.NewPCA() },
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the session for id when known; otherwise (empty or
// unknown id) it mints a fresh session under a new random id. The second
// return reports whether a session was created.
func (s *Store) GetOrCreate(id string) (string, bool) {
	if id != "" {
		s.mu.RLock()
		_, ok := s.sessions[id]
		s.mu.RUnlock()
		if ok {
			return id, false
		}
	}
	newID := uuid.NewString()
	s.mu.Lock()
	s.sessions[newID] = &entry{sess: &Session{
		ID:        newID,
		CreatedAt: time.Now(),
	}}
	s.mu.Unlock()
	s.logger.Debug("session created", zap.String("session_id", newID))
	return newID, true
}

func (s *Store) entry(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, id)
	}
	return e, nil
}

// RecordIteration appends a round to the session and returns its 1-based
// index. The query vector is copied; the session never aliases caller memory.
func (s *Store) RecordIteration(id string, queryVector []float32, source SourceKind, resultIDs []string, positiveIDs, negativeIDs []string, textFeedback string) (int, error) {
	e, err := s.entry(id)
	if err != nil {
		return 0, err
	}
	vec := make([]float32, len(queryVector))
	copy(vec, queryVector)

	e.mu.Lock()
	defer e.mu.Unlock()
	index := len(e.sess.Iterations) + 1
	e.sess.Iterations = append(e.sess.Iterations, &Iteration{
		Index:        index,
		QueryVector:  vec,
		Source:       source,
		ResultIDs:    append([]string(nil), resultIDs...),
		PositiveIDs:  append([]string(nil), positiveIDs...),
		NegativeIDs:  append([]string(nil), negativeIDs...),
		TextFeedback: textFeedback,
		CreatedAt:    time.Now(),
	})
	return index, nil
}

// BackfillFeedback sets the feedback fields of the session's last iteration,
// recording which feedback produced the next round. No-op on an empty
// session; never changes the iteration count.
func (s *Store) BackfillFeedback(id string, positiveIDs, negativeIDs []string, textFeedback string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sess.Iterations) == 0 {
		return nil
	}
	last := e.sess.Iterations[len(e.sess.Iterations)-1]
	last.PositiveIDs = append([]string(nil), positiveIDs...)
	last.NegativeIDs = append([]string(nil), negativeIDs...)
	last.TextFeedback = textFeedback
	return nil
}

// CurrentQueryVector returns a copy of the session's current query vector and
// the iteration count. A session with no iterations returns a nil vector.
func (s *Store) CurrentQueryVector(id string) ([]float32, int, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.CurrentQueryVector(), len(e.sess.Iterations), nil
}

// LastResultIDs returns up to m result ids from the session's last iteration.
func (s *Store) LastResultIDs(id string, m int) ([]string, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sess.Iterations) == 0 {
		return nil, nil
	}
	results := e.sess.Iterations[len(e.sess.Iterations)-1].ResultIDs
	if m > len(results) {
		m = len(results)
	}
	if m < 0 {
		m = 0
	}
	return append([]string(nil), results[:m]...), nil
}

// Info describes the session for inspection endpoints.
func (s *Store) Info(id string) (*models.SessionInfo, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	info := &models.SessionInfo{
		SessionID:      id,
		Iterations:     len(e.sess.Iterations),
		LastSource:     "none",
		FeedbackCounts: e.sess.FeedbackCounts(),
	}
	if n := len(e.sess.Iterations); n > 0 {
		info.LastSource = string(e.sess.Iterations[n-1].Source)
	}
	return info, nil
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReapExpired deletes every session older than maxAge, atomically per
// session, and returns how many were removed.
func (s *Store) ReapExpired(maxAge time.Duration) int {
	s.mu.RLock()
	candidates := make(map[string]*entry)
	cutoff := time.Now().Add(-maxAge)
	for id, e := range s.sessions {
		candidates[id] = e
	}
	s.mu.RUnlock()

	reaped := 0
	for id, e := range candidates {
		e.mu.Lock()
		expired := !e.sess.CreatedAt.After(cutoff)
		e.mu.Unlock()
		if !expired {
			continue
		}
		s.mu.Lock()
		// Re-check under the map lock; the entry may already be gone.
		if _, ok := s.sessions[id]; ok {
			delete(s.sessions, id)
			reaped++
		}
		s.mu.Unlock()
	}
	if reaped > 0 {
		s.logger.Info("reaped expired sessions", zap.Int("count", reaped))
	}
	return reaped
}

// StartReaper sweeps expired sessions every interval until ctx is cancelled.
func (s *Store) StartReaper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReapExpired(maxAge)
			}
		}
	}()
}
