package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/events"
)

// Repository provides Postgres-backed persistence for recommendations and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `recommendation_id, activity_id, tenant_id, user_id, activity_type, summary, improvements, suggestions, safety, created_at`

// Upsert stores the recommendation keyed by activity id and records the
// recommendation.created outbox event inside the same transaction. A redelivered
// notification replaces the prior row, keeping cardinality at one per activity.
func (r *Repository) Upsert(ctx context.Context, rec domain.Recommendation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", rec.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO recommendations (recommendation_id, activity_id, tenant_id, user_id, activity_type, summary, improvements, suggestions, safety, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (activity_id) DO UPDATE SET
            recommendation_id = EXCLUDED.recommendation_id,
            activity_type = EXCLUDED.activity_type,
            summary = EXCLUDED.summary,
            improvements = EXCLUDED.improvements,
            suggestions = EXCLUDED.suggestions,
            safety = EXCLUDED.safety,
            created_at = EXCLUDED.created_at`

	_, err = tx.Exec(ctx, stmt,
		rec.ID,
		rec.ActivityID,
		rec.TenantID,
		rec.UserID,
		string(rec.ActivityType),
		rec.Summary,
		rec.Improvements,
		rec.Suggestions,
		rec.Safety,
		rec.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, rec, "recommendation.created", events.RecommendationCreated{
		RecommendationID: rec.ID,
		ActivityID:       rec.ActivityID,
		TenantID:         rec.TenantID,
		UserID:           rec.UserID,
		ActivityType:     string(rec.ActivityType),
		CreatedAt:        rec.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, rec domain.Recommendation, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(rec)
	dedupeKey := fmt.Sprintf("%s:%s", rec.ID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		rec.TenantID,
		"recommendation",
		rec.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// GetByActivity retrieves the recommendation for an activity, or nil when none exists.
func (r *Repository) GetByActivity(ctx context.Context, tenantID, activityID string) (*domain.Recommendation, error) {
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE tenant_id=$1 AND activity_id=$2`, selectColumns)

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, query, tenantID, activityID)
	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByUser returns recommendations for a user ordered by creation time descending.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := fmt.Sprintf(`SELECT %s FROM recommendations WHERE tenant_id=$1 AND user_id=$2`, selectColumns)

	if cursor != nil {
		query += ` AND (created_at, recommendation_id) < ($4, $5)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, recommendation_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Recommendation, 0, limit)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

func scanRecommendation(row pgx.Row) (*domain.Recommendation, error) {
	var rec domain.Recommendation
	var activityType string
	if err := row.Scan(&rec.ID, &rec.ActivityID, &rec.TenantID, &rec.UserID, &activityType, &rec.Summary, &rec.Improvements, &rec.Suggestions, &rec.Safety, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.ActivityType = domain.ActivityType(activityType)
	if rec.Improvements == nil {
		rec.Improvements = []string{}
	}
	if rec.Suggestions == nil {
		rec.Suggestions = []string{}
	}
	if rec.Safety == nil {
		rec.Safety = []string{}
	}
	return &rec, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Recommendation) string
}

var eventCatalog = map[string]EventMetadata{
	"recommendation.created": {
		Topic:         "recommendation_events",
		SchemaSubject: "recommendation_events-value",
		PartitionKeyFn: func(r domain.Recommendation) string {
			return fmt.Sprintf("%s:%s", r.TenantID, r.UserID)
		},
	},
}
