package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/BengalSapper007/fitness-microservice/internal/analysis"
	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/events"
	"github.com/BengalSapper007/fitness-microservice/internal/observability"
)

// EventActivityCreated is the only event type the analysis pipeline reacts to.
const EventActivityCreated = "activity.created"

// Analyzer is the external model call. Implemented by gemini.Client.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// AnalysisHandler turns activity-created events into stored recommendations.
// Each invocation processes one activity independently; the only shared
// resource is the recommendation store, whose contract is a per-activity upsert.
type AnalysisHandler struct {
	analyzer Analyzer
	service  *domain.Service
	logger   *log.Logger
}

// NewAnalysisHandler constructs the handler.
func NewAnalysisHandler(analyzer Analyzer, service *domain.Service) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: analyzer,
		service:  service,
		logger:   log.New(log.Writer(), "[analysis] ", log.LstdFlags),
	}
}

// Handle builds the prompt, invokes the model, parses the answer, and upserts
// the recommendation. A terminal model failure is returned as an error so the
// offset stays uncommitted and the broker redelivers the notification; parsing
// never fails, it degrades to defaults.
func (h *AnalysisHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != EventActivityCreated {
		return nil
	}

	var evt events.ActivityCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		// A malformed payload cannot be repaired by redelivery; count it and move on.
		h.logger.Printf("dropping undecodable activity payload (topic=%s, offset=%d): %v", msg.Topic, msg.Offset, err)
		recordDecodeError(msg.Topic)
		return nil
	}
	if evt.ActivityID == "" || evt.UserID == "" {
		h.logger.Printf("dropping activity event without identity (topic=%s, offset=%d)", msg.Topic, msg.Offset)
		recordDecodeError(msg.Topic)
		return nil
	}
	if evt.TenantID == "" {
		evt.TenantID = msg.TenantID
	}

	req := analysis.NewRequest(evt)

	text, err := h.analyzer.Analyze(ctx, req.Prompt)
	if err != nil {
		observability.RecordAnalysisFailed()
		return fmt.Errorf("analyze activity %s: %w", evt.ActivityID, err)
	}

	rec := analysis.Parse(text, req)
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()

	if err := h.service.SaveRecommendation(ctx, rec); err != nil {
		return fmt.Errorf("store recommendation for activity %s: %w", evt.ActivityID, err)
	}

	observability.RecordRecommendationStored(rec.CreatedAt)
	return nil
}
