package auth

// Known OAuth scopes used by the backend services.
const (
	ScopeRecommendationsRead = "recommendations:read"
)
