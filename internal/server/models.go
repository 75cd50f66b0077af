package server

import "time"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// CreateAnalysisRequest submits a query for analysis.
type CreateAnalysisRequest struct {
	Query string `json:"query"`
}

// CreateAnalysisResponse acknowledges an accepted run.
type CreateAnalysisResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// AnalysisRunResponse is the archived (or in-flight) view of one run.
type AnalysisRunResponse struct {
	ID                    string     `json:"id"`
	Query                 string     `json:"query"`
	Status                string     `json:"status"`
	Stage                 string     `json:"stage,omitempty"`
	Error                 string     `json:"error,omitempty"`
	ComprehensiveAnalysis string     `json:"comprehensive_analysis,omitempty"`
	KeyInsights           []string   `json:"key_insights,omitempty"`
	ConfidenceScore       float64    `json:"confidence_score"`
	Sources               []string   `json:"sources,omitempty"`
	CostEstimate          float64    `json:"cost_estimate"`
	TokensUsed            int64      `json:"tokens_used"`
	ModelsUsed            []string   `json:"models_used,omitempty"`
	ProcessingTimeMS      int64      `json:"processing_time_ms"`
	CreatedAt             time.Time  `json:"created_at"`
	FinishedAt            *time.Time `json:"finished_at,omitempty"`
}

// AnalysisListResponse wraps a page of runs.
type AnalysisListResponse struct {
	Runs []AnalysisRunResponse `json:"runs"`
}
