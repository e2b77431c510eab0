//go:build integration
// +build integration

package outbox

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type capturingProducer struct {
	mu       sync.Mutex
	byTopic  map[string][]kafka.Message
	writeErr error
}

func (p *capturingProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if p.writeErr != nil {
		return p.writeErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byTopic == nil {
		p.byTopic = make(map[string][]kafka.Message)
	}
	p.byTopic[topic] = append(p.byTopic[topic], msgs...)
	return nil
}

type staticRegistry struct {
	id    int
	calls int
}

func (r *staticRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	r.calls++
	return r.id, nil
}

func TestDispatcherPublishesClaimedBatch(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupOutboxDB(t, ctx)
	defer cleanup()

	insertOutboxRow(t, ctx, pool, "tenant-a", "rec-1", `{"recommendation_id":"rec-1"}`)
	insertOutboxRow(t, ctx, pool, "tenant-a", "rec-2", `{"recommendation_id":"rec-2"}`)

	producer := &capturingProducer{}
	registry := &staticRegistry{id: 7}
	dispatcher := NewDispatcher(pool, producer, registry, time.Second, 10)

	deliveredBefore := counterValue(t, deliveredCounter)
	require.NoError(t, dispatcher.drainOnce(ctx))

	msgs := producer.byTopic["recommendation_events"]
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		require.Equal(t, byte(0), msg.Value[0], "wire format starts with magic byte")
		require.Equal(t, uint32(7), binary.BigEndian.Uint32(msg.Value[1:5]))
		require.Equal(t, []byte("tenant-a:u1"), msg.Key)
		require.Equal(t, "event_type", msg.Headers[0].Key)
		require.Equal(t, []byte("recommendation.created"), msg.Headers[0].Value)
	}
	require.Equal(t, 1, registry.calls, "schema id is cached across messages of the same subject")

	var unpublished int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&unpublished))
	require.Equal(t, 0, unpublished)

	require.Equal(t, deliveredBefore+2, counterValue(t, deliveredCounter))
}

func TestDispatcherRoutesFailedBatchToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupOutboxDB(t, ctx)
	defer cleanup()

	insertOutboxRow(t, ctx, pool, "tenant-b", "rec-3", `{"recommendation_id":"rec-3"}`)

	producer := &capturingProducer{writeErr: context.DeadlineExceeded}
	dispatcher := NewDispatcher(pool, producer, &staticRegistry{id: 1}, time.Second, 10)

	failedBefore := counterValue(t, failedCounter)
	require.NoError(t, dispatcher.drainOnce(ctx))

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE aggregate_id='rec-3'`).Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	var unpublished int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&unpublished))
	require.Equal(t, 0, unpublished, "failed rows are retired once captured in the DLQ")

	require.Equal(t, failedBefore+1, counterValue(t, failedCounter))
}

func counterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	return metric.GetCounter().GetValue()
}

func insertOutboxRow(t *testing.T, ctx context.Context, pool *pgxpool.Pool, tenantID, aggregateID, payload string) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
         VALUES ($1,'recommendation',$2,'recommendation.created','recommendation_events','recommendation_events-value',$3,$4,$5)`,
		tenantID, aggregateID, tenantID+":u1", payload, aggregateID+":recommendation.created",
	)
	require.NoError(t, err)
}

func setupOutboxDB(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fitness"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		require.True(t, time.Now().Before(deadline), "database did not become ready")
		time.Sleep(time.Second)
	}

	migrationsPath := filepath.Join(callerDir(t), "../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)
	for _, file := range files {
		content, readErr := os.ReadFile(file)
		require.NoError(t, readErr)
		_, execErr := pool.Exec(ctx, string(content))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}

	return pool, func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
}

func callerDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Dir(file)
}
