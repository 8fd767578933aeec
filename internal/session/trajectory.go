package session

import (
	"fmt"

	"github.com/hyperjump/miru/internal/models"
)

// ProjectTrajectory projects the session's query vectors to 2-D points in
// iteration order. reference vectors, when supplied, join the reducer fit so
// the projection is anchored to the corpus; they are projected too and
// returned separately.
//
// With fewer than 2 iterations a 2-D fit is undefined, so a single point at
// the origin is returned (and no reference points) instead of invoking the
// reducer. An empty session yields no points at all.
func (s *Store) ProjectTrajectory(id string, reference [][]float32) ([]models.TrajectoryPoint, []models.Point2D, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	queryVectors := e.sess.QueryVectors()
	e.mu.Unlock()

	if len(queryVectors) == 0 {
		return nil, nil, nil
	}
	if len(queryVectors) < 2 {
		return []models.TrajectoryPoint{{X: 0, Y: 0, Iteration: 1}}, nil, nil
	}

	fitSet := queryVectors
	if len(reference) > 0 {
		fitSet = make([][]float32, 0, len(queryVectors)+len(reference))
		fitSet = append(fitSet, queryVectors...)
		fitSet = append(fitSet, reference...)
	}

	reducer := s.newReducer()
	if err := reducer.Fit(fitSet); err != nil {
		return nil, nil, fmt.Errorf("reducer fit: %w", err)
	}
	projected, err := reducer.Transform(queryVectors)
	if err != nil {
		return nil, nil, fmt.Errorf("reducer transform: %w", err)
	}
	points := make([]models.TrajectoryPoint, len(projected))
	for i, p := range projected {
		points[i] = models.TrajectoryPoint{X: p[0], Y: p[1], Iteration: i + 1}
	}

	var refPoints []models.Point2D
	if len(reference) > 0 {
		refProjected, err := reducer.Transform(reference)
		if err != nil {
			return nil, nil, fmt.Errorf("reducer transform reference: %w", err)
		}
		refPoints = make([]models.Point2D, len(refProjected))
		for i, p := range refProjected {
			refPoints[i] = models.Point2D{X: p[0], Y: p[1]}
		}
	}
	return points, refPoints, nil
}
