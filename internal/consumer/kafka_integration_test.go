//go:build integration

package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/events"
	"github.com/BengalSapper007/fitness-microservice/internal/persistence/memory"
)

type cannedAnalyzer struct{}

func (cannedAnalyzer) Analyze(context.Context, string) (string, error) {
	return "Summary: Good pace.\nImprovements:\n- Increase distance\nSuggestions:\n- Add interval training", nil
}

func TestKafkaActivityEventStoresRecommendation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	topic := "activity_events"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "recommendation-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	repo := memory.NewRepository()
	service := domain.NewService(repo)
	handler := NewAnalysisHandler(cannedAnalyzer{}, service)

	consumerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc := NewProcessor(reader, handler)
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	evt := events.ActivityCreated{
		ActivityID:     "act-int",
		TenantID:       "tenant",
		UserID:         "user",
		ActivityType:   "RUNNING",
		StartedAt:      time.Now().UTC(),
		DurationMin:    30,
		CaloriesBurned: 300,
		Source:         "integration-test",
		Version:        "v1",
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	err = writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(evt.ActivityID),
		Value: frameWithSchemaID(1, payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventActivityCreated)},
			{Key: "tenant_id", Value: []byte(evt.TenantID)},
			{Key: "schema_subject", Value: []byte("activity_events-value")},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := repo.GetByActivity(ctx, evt.TenantID, evt.ActivityID)
		return err == nil && rec != nil
	}, 30*time.Second, 500*time.Millisecond)

	stored, err := repo.GetByActivity(ctx, evt.TenantID, evt.ActivityID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "Good pace.", stored.Summary)
	require.Equal(t, []string{"Increase distance"}, stored.Improvements)
	require.Equal(t, []string{"Add interval training"}, stored.Suggestions)
	require.Empty(t, stored.Safety)
	require.Equal(t, domain.ActivityRunning, stored.ActivityType)
}

func frameWithSchemaID(schemaID int, payload []byte) []byte {
	framed := make([]byte, 5+len(payload))
	framed[0] = 0
	binary.BigEndian.PutUint32(framed[1:5], uint32(schemaID))
	return append(framed[:5], payload...)
}
