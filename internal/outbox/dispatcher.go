// Package outbox persists and delivers recommendation events to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Event is one undelivered row from the outbox table. For this service the
// aggregate is always a recommendation and the event type is
// recommendation.created, but rows carry their routing metadata so the
// dispatcher never hardcodes it.
type Event struct {
	EventID       int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// Dispatcher drains the outbox table and publishes recommendation events to
// Kafka, framing payloads with the Schema Registry wire format. Rows that
// cannot be delivered move to the DLQ so one broken topic never wedges the
// recommendation upsert path that feeds the table.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	registry         schemaRegistrar
	dlq              *DLQWriter
	pollInterval     time.Duration
	batchSize        int
	schemaIDCache    sync.Map
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		registry:         registry,
		dlq:              NewDLQWriter(pool),
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.drainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the polling loop has exited.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

// drainOnce claims one batch of unpublished recommendation events, delivers it,
// and retires the rows. A delivery failure retires the batch into the DLQ
// instead; the claim itself is never rolled back into a retry loop.
func (d *Dispatcher) drainOnce(ctx context.Context) error {
	start := time.Now()

	events, err := d.claimBatch(ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.deliver(ctx, events); err != nil {
		log.Printf("outbox: delivery failure: %v", err)
		failedCounter.Add(float64(len(events)))
		if dlqErr := d.moveToDLQ(ctx, events, err.Error()); dlqErr != nil {
			return dlqErr
		}
		return d.markPublished(ctx, events)
	}

	deliveredCounter.Add(float64(len(events)))
	return d.markPublished(ctx, events)
}

// claimBatch locks up to batchSize unpublished rows so concurrent dispatchers
// (one per api replica) never deliver the same recommendation event twice.
func (d *Dispatcher) claimBatch(ctx context.Context) ([]Event, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	query := `SELECT event_id, tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.EventID, &evt.TenantID, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &evt.Topic, &evt.SchemaSubject, &evt.PartitionKey, &evt.Payload); err != nil {
			return nil, err
		}
		events = append(events, evt)
		ids = append(ids, evt.EventID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		tx.Rollback(ctx)
		return nil, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return events, nil
}

// deliver frames each event with its schema id and writes per-topic batches.
// The partition key is tenant:user, so a user's recommendation stream stays
// ordered within its partition.
func (d *Dispatcher) deliver(ctx context.Context, events []Event) error {
	batches := make(map[string][]kafka.Message)

	for _, evt := range events {
		schemaID, err := d.schemaIDFor(ctx, evt)
		if err != nil {
			return err
		}

		record := kafka.Message{
			Key:   []byte(evt.PartitionKey),
			Value: frameWithSchema(schemaID, []byte(evt.Payload)),
			Time:  time.Now().UTC(),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.EventType)},
				{Key: "tenant_id", Value: []byte(evt.TenantID)},
				{Key: "schema_subject", Value: []byte(evt.SchemaSubject)},
			},
		}
		batches[evt.Topic] = append(batches[evt.Topic], record)
	}

	for topic, batch := range batches {
		if err := d.producer.WriteMessages(ctx, topic, batch...); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) schemaIDFor(ctx context.Context, evt Event) (int, error) {
	meta, ok := schemaCatalog[evt.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema for event_type=%s", evt.EventType)
	}

	cacheKey := fmt.Sprintf("%s::%s", evt.SchemaSubject, meta.Schema)
	if cached, found := d.schemaIDCache.Load(cacheKey); found {
		return cached.(int), nil
	}

	id, err := d.registry.EnsureSchema(ctx, evt.SchemaSubject, meta.Schema)
	if err != nil {
		return 0, err
	}
	d.schemaIDCache.Store(cacheKey, id)
	return id, nil
}

// markPublished retires delivered rows per tenant so the tenant_id setting
// travels with each update transaction.
func (d *Dispatcher) markPublished(ctx context.Context, events []Event) error {
	groups := make(map[string][]int64)
	for _, evt := range events {
		groups[evt.TenantID] = append(groups[evt.TenantID], evt.EventID)
	}

	for tenantID, ids := range groups {
		conn, err := d.pool.Acquire(ctx)
		if err != nil {
			return err
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			conn.Release()
			return err
		}

		if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
			tx.Rollback(ctx)
			conn.Release()
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, ids); err != nil {
			tx.Rollback(ctx)
			conn.Release()
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			conn.Release()
			return err
		}
		conn.Release()
	}

	return nil
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, events []Event, reason string) error {
	for _, evt := range events {
		entryReason := fmt.Sprintf("%s (topic=%s)", reason, evt.Topic)
		if err := d.dlq.Write(ctx, evt, entryReason); err != nil {
			return err
		}
		dlqCounter.WithLabelValues(evt.Topic).Inc()
	}
	return nil
}

// frameWithSchema applies Confluent framing: magic byte 0, then the schema id
// big-endian, then the JSON payload.
func frameWithSchema(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	"recommendation.created": {
		Schema: recommendationCreatedSchema,
	},
}
