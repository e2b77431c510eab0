// Package events defines shared cross-service event payloads.
package events

import (
	"encoding/json"
	"time"
)

// ActivityCreated represents the message emitted when a new activity is accepted.
type ActivityCreated struct {
	ActivityID        string                     `json:"activity_id"`
	TenantID          string                     `json:"tenant_id"`
	UserID            string                     `json:"user_id"`
	ActivityType      string                     `json:"activity_type"`
	StartedAt         time.Time                  `json:"started_at"`
	DurationMin       int                        `json:"duration_min"`
	CaloriesBurned    int                        `json:"calories_burned"`
	AdditionalMetrics map[string]json.RawMessage `json:"additional_metrics,omitempty"`
	Source            string                     `json:"source"`
	Version           string                     `json:"version"`
}

// RecommendationCreated is emitted once an AI recommendation has been stored for an activity.
type RecommendationCreated struct {
	RecommendationID string    `json:"recommendation_id"`
	ActivityID       string    `json:"activity_id"`
	TenantID         string    `json:"tenant_id"`
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	CreatedAt        time.Time `json:"created_at"`
}
