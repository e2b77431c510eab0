package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BengalSapper007/fitness-microservice/internal/auth"
	"github.com/BengalSapper007/fitness-microservice/internal/domain"
	"github.com/BengalSapper007/fitness-microservice/internal/persistence/memory"
)

func seedRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo := memory.NewRepository()
	base := time.Date(2025, time.October, 27, 20, 0, 0, 0, time.UTC)

	recs := []domain.Recommendation{
		{
			ID:           "rec-1",
			ActivityID:   "act-1",
			TenantID:     "tenant-1",
			UserID:       "user-1",
			ActivityType: domain.ActivityRunning,
			Summary:      "Good pace.",
			Improvements: []string{"Increase distance"},
			Suggestions:  []string{"Add interval training"},
			Safety:       []string{},
			CreatedAt:    base,
		},
		{
			ID:           "rec-2",
			ActivityID:   "act-2",
			TenantID:     "tenant-1",
			UserID:       "user-1",
			ActivityType: domain.ActivityCycling,
			Summary:      "Steady ride.",
			Improvements: []string{},
			Suggestions:  []string{},
			Safety:       []string{"Check tire pressure"},
			CreatedAt:    base.Add(-time.Hour),
		},
	}
	for _, rec := range recs {
		if err := repo.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return repo
}

func readerClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeRecommendationsRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestListRecommendationsForUser(t *testing.T) {
	handler := NewHandler(domain.NewService(seedRepo(t)))

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations?user_id=user-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.listRecommendations(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListRecommendationsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items got %d", len(resp.Items))
	}
	if resp.Items[0].RecommendationID != "rec-1" {
		t.Fatalf("expected newest first, got %s", resp.Items[0].RecommendationID)
	}
	if resp.Items[1].ActivityType != "CYCLING" {
		t.Fatalf("unexpected activity type %s", resp.Items[1].ActivityType)
	}
}

type limitRecordingRepo struct {
	memory.Repository
	lastLimit int
}

func (r *limitRecordingRepo) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	r.lastLimit = limit
	return r.Repository.ListByUser(ctx, tenantID, userID, cursor, limit)
}

func TestListRecommendationsCapsLimit(t *testing.T) {
	repo := &limitRecordingRepo{}
	handler := NewHandler(domain.NewService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations?user_id=user-1&limit=5000", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.listRecommendations(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if repo.lastLimit != 50 {
		t.Fatalf("expected limit capped at 50, repository saw %d", repo.lastLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/recommendations?user_id=user-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))
	handler.listRecommendations(httptest.NewRecorder(), req)
	if repo.lastLimit != 20 {
		t.Fatalf("expected default limit 20, repository saw %d", repo.lastLimit)
	}
}

func TestListRecommendationsRequiresUserID(t *testing.T) {
	handler := NewHandler(domain.NewService(memory.NewRepository()))

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.listRecommendations(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestListRecommendationsRequiresScope(t *testing.T) {
	handler := NewHandler(domain.NewService(memory.NewRepository()))

	claims := readerClaims()
	claims.Scopes = map[string]struct{}{}

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations?user_id=user-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claims))

	rr := httptest.NewRecorder()
	handler.listRecommendations(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestGetRecommendationByActivity(t *testing.T) {
	handler := NewHandler(domain.NewService(seedRepo(t)))

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/activity/act-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.recommendationByActivity(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var view RecommendationView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if view.Summary != "Good pace." {
		t.Fatalf("unexpected summary %q", view.Summary)
	}
	if len(view.Improvements) != 1 || view.Improvements[0] != "Increase distance" {
		t.Fatalf("unexpected improvements %v", view.Improvements)
	}
}

func TestGetRecommendationNotFoundIsDistinctFromError(t *testing.T) {
	handler := NewHandler(domain.NewService(seedRepo(t)))

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/activity/unprocessed", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), readerClaims()))

	rr := httptest.NewRecorder()
	handler.recommendationByActivity(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}

	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["type"] != "not_found" {
		t.Fatalf("expected not_found type got %q", payload["type"])
	}
}

func TestGetRecommendationOtherTenantIsNotFound(t *testing.T) {
	handler := NewHandler(domain.NewService(seedRepo(t)))

	claims := readerClaims()
	claims.TenantID = "tenant-2"

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/activity/act-1", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), claims))

	rr := httptest.NewRecorder()
	handler.recommendationByActivity(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}
