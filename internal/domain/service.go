// Package domain defines the business logic for the recommendation service.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRecommendationNotFound is returned when no recommendation exists yet for an activity.
// This is an expected state while the analysis pipeline is still processing, not a fault.
var ErrRecommendationNotFound = errors.New("recommendation not found")

// Cursor models the pagination token for user listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Repository captures persistence operations for recommendations.
type Repository interface {
	// Upsert stores the recommendation keyed by activity id. A second write for
	// the same activity replaces the prior row, so redelivered notifications
	// never produce duplicates.
	Upsert(ctx context.Context, rec Recommendation) error
	// GetByActivity returns nil (not an error) when no recommendation exists.
	GetByActivity(ctx context.Context, tenantID, activityID string) (*Recommendation, error)
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error)
}

// Service orchestrates recommendation reads and writes.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SaveRecommendation upserts the recommendation for its activity.
func (s *Service) SaveRecommendation(ctx context.Context, rec Recommendation) error {
	return s.repo.Upsert(ctx, rec)
}

// GetActivityRecommendation fetches the recommendation for a single activity.
func (s *Service) GetActivityRecommendation(ctx context.Context, tenantID, activityID string) (*Recommendation, error) {
	rec, err := s.repo.GetByActivity(ctx, tenantID, activityID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecommendationNotFound
	}
	return rec, nil
}

// ListUserRecommendations fetches recommendations for a user, newest first.
func (s *Service) ListUserRecommendations(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, cursor, limit)
}
