// Package api exposes the recommendation query endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BengalSapper007/fitness-microservice/internal/auth"
	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/persistence"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/recommendations", h.listRecommendations)
	mux.HandleFunc("/v1/recommendations/activity/", h.recommendationByActivity)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRecommendationsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope recommendations:read required")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing user_id parameter")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	recs, next, err := h.service.ListUserRecommendations(r.Context(), claims.TenantID, userID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toRecommendationView(rec))
	}

	writeJSON(w, http.StatusOK, ListRecommendationsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) recommendationByActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRecommendationsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope recommendations:read required")
		return
	}

	activityID := strings.TrimPrefix(r.URL.Path, "/v1/recommendations/activity/")
	if activityID == "" || strings.Contains(activityID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	rec, err := h.service.GetActivityRecommendation(r.Context(), claims.TenantID, activityID)
	if err != nil {
		// Absence is the normal state while the pipeline is still processing;
		// callers distinguish it from a processing failure by the error type.
		if errors.Is(err, domain.ErrRecommendationNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no recommendation for this activity yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toRecommendationView(*rec))
}

// RecommendationView exposes full details about a recommendation.
type RecommendationView struct {
	RecommendationID string    `json:"recommendation_id"`
	ActivityID       string    `json:"activity_id"`
	TenantID         string    `json:"tenant_id"`
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	Summary          string    `json:"summary"`
	Improvements     []string  `json:"improvements"`
	Suggestions      []string  `json:"suggestions"`
	Safety           []string  `json:"safety"`
	CreatedAt        time.Time `json:"created_at"`
}

// ListRecommendationsResponse packages list results.
type ListRecommendationsResponse struct {
	Items      []RecommendationView `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toRecommendationView(rec domain.Recommendation) RecommendationView {
	return RecommendationView{
		RecommendationID: rec.ID,
		ActivityID:       rec.ActivityID,
		TenantID:         rec.TenantID,
		UserID:           rec.UserID,
		ActivityType:     string(rec.ActivityType),
		Summary:          rec.Summary,
		Improvements:     rec.Improvements,
		Suggestions:      rec.Suggestions,
		Safety:           rec.Safety,
		CreatedAt:        rec.CreatedAt,
	}
}
