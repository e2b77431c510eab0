package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter captures recommendation events the dispatcher could not deliver.
// Rows keep their full routing metadata so an operator can replay them against
// the recommendation_events topic once the broker issue is resolved.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write records a failed event in the DLQ alongside the failure reason.
func (w *DLQWriter) Write(ctx context.Context, evt Event, reason string) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", evt.TenantID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO outbox_dlq (tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key)
	         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		evt.TenantID, evt.EventID, evt.EventType, evt.Topic, evt.Payload, reason, evt.AggregateType, evt.AggregateID, evt.SchemaSubject, evt.PartitionKey,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
