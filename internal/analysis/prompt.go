// Package analysis turns activities into prompts and model output into recommendations.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/events"
)

// Request is the ephemeral analysis unit built from one activity notification.
// It exists only for the duration of a single model invocation and is never persisted.
type Request struct {
	ActivityID     string
	TenantID       string
	UserID         string
	ActivityType   domain.ActivityType
	DurationMin    int
	CaloriesBurned int
	StartedAt      time.Time
	Prompt         string
}

// NewRequest renders the natural-language prompt for an activity-created event.
func NewRequest(evt events.ActivityCreated) Request {
	activityType := domain.NormalizeActivityType(evt.ActivityType)
	return Request{
		ActivityID:     evt.ActivityID,
		TenantID:       evt.TenantID,
		UserID:         evt.UserID,
		ActivityType:   activityType,
		DurationMin:    evt.DurationMin,
		CaloriesBurned: evt.CaloriesBurned,
		StartedAt:      evt.StartedAt,
		Prompt:         renderPrompt(activityType, evt),
	}
}

func renderPrompt(activityType domain.ActivityType, evt events.ActivityCreated) string {
	var b strings.Builder
	b.WriteString("You are a fitness coach. Analyze the workout below and respond using exactly these sections:\n")
	b.WriteString("Summary:\nAreas for Improvement:\nSuggestions:\nSafety Guidelines:\n\n")
	b.WriteString("List items one per line prefixed with \"-\". Keep the summary to two or three sentences.\n\n")
	b.WriteString("Workout:\n")
	fmt.Fprintf(&b, "- Type: %s\n", activityType)
	fmt.Fprintf(&b, "- Duration: %d minutes\n", evt.DurationMin)
	fmt.Fprintf(&b, "- Calories burned: %d\n", evt.CaloriesBurned)
	if !evt.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started at: %s\n", evt.StartedAt.UTC().Format(time.RFC3339))
	}
	for _, line := range metricLines(evt.AdditionalMetrics) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// metricLines renders free-form metrics in a stable order so prompts are reproducible.
func metricLines(metrics map[string]json.RawMessage) []string {
	if len(metrics) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.Trim(strings.TrimSpace(string(metrics[key])), `"`)
		if value == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", key, value))
	}
	return lines
}
