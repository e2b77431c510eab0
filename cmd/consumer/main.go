package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/BengalSapper007/fitness-microservice/internal/config"
	"github.com/BengalSapper007/fitness-microservice/internal/consumer"
	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/gemini"
	persistence "github.com/BengalSapper007/fitness-microservice/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	analyzer, err := gemini.NewClient(gemini.Config{
		APIURL:     cfg.GeminiAPIURL,
		APIKey:     cfg.GeminiAPIKey,
		RetryCount: cfg.GeminiRetryCount,
		RetryDelay: cfg.GeminiRetryDelay,
		Timeout:    cfg.GeminiTimeout,
	})
	if err != nil {
		log.Fatalf("failed to build gemini client: %v", err)
	}

	service := domain.NewService(persistence.NewRepository(pool))
	handler := consumer.NewAnalysisHandler(analyzer, service)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("consumer metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	workers := cfg.ConsumerWorkers
	if workers < 1 {
		workers = 1
	}

	for _, topic := range cfg.ConsumerTopics {
		// Multiple readers in the same group spread partitions across workers,
		// so one activity's slow model call does not block the rest.
		for i := 0; i < workers; i++ {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:         cfg.KafkaBrokers,
				GroupID:         cfg.ConsumerGroupID,
				Topic:           topic,
				MinBytes:        1e3,
				MaxBytes:        10e6,
				CommitInterval:  time.Second,
				RetentionTime:   24 * time.Hour,
				ReadLagInterval: -1,
			})

			proc := consumer.NewProcessor(reader, handler)

			wg.Add(1)
			go func(topic string, r *kafka.Reader) {
				defer wg.Done()
				defer r.Close()

				log.Printf("consumer started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
				if err := proc.Run(ctx); err != nil && err != context.Canceled {
					log.Printf("consumer stopped with error (topic=%s): %v", topic, err)
				}
			}(topic, reader)
		}
	}

	<-stop
	log.Println("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
}
