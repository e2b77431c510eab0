package domain

import (
	"strings"
	"time"
)

// ActivityType is the closed set of workout types the platform understands.
type ActivityType string

const (
	ActivityRunning        ActivityType = "RUNNING"
	ActivityWalking        ActivityType = "WALKING"
	ActivityCycling        ActivityType = "CYCLING"
	ActivitySwimming       ActivityType = "SWIMMING"
	ActivityWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityYoga           ActivityType = "YOGA"
	ActivityOther          ActivityType = "OTHER"
)

var knownActivityTypes = map[ActivityType]struct{}{
	ActivityRunning:        {},
	ActivityWalking:        {},
	ActivityCycling:        {},
	ActivitySwimming:       {},
	ActivityWeightTraining: {},
	ActivityYoga:           {},
	ActivityOther:          {},
}

// NormalizeActivityType maps arbitrary input onto the closed type set, defaulting to OTHER.
func NormalizeActivityType(raw string) ActivityType {
	candidate := ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownActivityTypes[candidate]; ok {
		return candidate
	}
	return ActivityOther
}

// Recommendation is the structured AI guidance derived from exactly one activity.
// It references the activity by id only; the activity record itself is owned elsewhere.
type Recommendation struct {
	ID           string
	ActivityID   string
	TenantID     string
	UserID       string
	ActivityType ActivityType
	Summary      string
	Improvements []string
	Suggestions  []string
	Safety       []string
	CreatedAt    time.Time
}
