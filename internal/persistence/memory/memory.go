// Package memory stores recommendations in memory for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/BengalSapper007/fitness-microservice/internal/domain"
)

// Repository keeps one recommendation per activity id behind a RWMutex.
type Repository struct {
	mu   sync.RWMutex
	byID map[string]domain.Recommendation // keyed by activity id
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{byID: make(map[string]domain.Recommendation)}
}

// Upsert implements domain.Repository. The last write for an activity id wins.
func (r *Repository) Upsert(ctx context.Context, rec domain.Recommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rec.ActivityID] = rec
	return nil
}

// GetByActivity returns nil when no recommendation exists for the activity.
func (r *Repository) GetByActivity(ctx context.Context, tenantID, activityID string) (*domain.Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[activityID]
	if !ok || rec.TenantID != tenantID {
		return nil, nil
	}
	return &rec, nil
}

// ListByUser returns the user's recommendations ordered by creation time descending.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.Recommendation, 0)
	for _, rec := range r.byID {
		if rec.TenantID != tenantID || rec.UserID != userID {
			continue
		}
		results = append(results, rec)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if cursor != nil {
		filtered := results[:0]
		for _, rec := range results {
			if rec.CreatedAt.Before(cursor.CreatedAt) || (rec.CreatedAt.Equal(cursor.CreatedAt) && rec.ID < cursor.ID) {
				filtered = append(filtered, rec)
			}
		}
		results = filtered
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}
