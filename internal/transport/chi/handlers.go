package chi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
)

// maxQueryLen bounds a chat question in bytes.
const maxQueryLen = 4000

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

// ChatResponse is the body of a chat reply.
type ChatResponse struct {
	SessionID       string   `json:"session_id"`
	Answer          string   `json:"answer"`
	Outcome         string   `json:"outcome"`
	ReframedQuery   string   `json:"reframed_query,omitempty"`
	Iterations      int      `json:"iterations"`
	FunctionsCalled []string `json:"functions_called"`
}

// Chat handles POST /v1/chat. Every engine outcome is a 200; only malformed
// requests are rejected.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return
	}
	if len(query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"query must be at most "+strconv.Itoa(maxQueryLen)+" bytes")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	reply := s.chat.Process(ctx, strings.TrimSpace(req.SessionID), query)

	functions := reply.FunctionsCalled
	if functions == nil {
		functions = []string{}
	}
	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:       reply.SessionID,
		Answer:          reply.Text,
		Outcome:         string(reply.Outcome),
		ReframedQuery:   reply.ReframedQuery,
		Iterations:      reply.Iterations,
		FunctionsCalled: functions,
	})
}

// TurnResponse is one session turn.
type TurnResponse struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SessionResponse is the body of GET /v1/sessions/{id}.
type SessionResponse struct {
	ID        string               `json:"id"`
	Turns     []TurnResponse       `json:"turns"`
	Summary   conversation.Summary `json:"summary"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// GetSession handles GET /v1/sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	turns := make([]TurnResponse, len(snap.Turns))
	for i, t := range snap.Turns {
		turns[i] = TurnResponse{Role: string(t.Role), Text: t.Text, At: t.At}
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		ID:        snap.ID,
		Turns:     turns,
		Summary:   snap.Summary,
		UpdatedAt: snap.UpdatedAt,
	})
}

// DeleteSession handles DELETE /v1/sessions/{id}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BudgetResponse is one budget window.
type BudgetResponse struct {
	TokensLimit     int64     `json:"tokens_limit"`
	TokensUsed      int64     `json:"tokens_used"`
	TokensRemaining *int64    `json:"tokens_remaining,omitempty"`
	IsExhausted     bool      `json:"is_exhausted"`
	ResetsAt        time.Time `json:"resets_at"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period        string         `json:"period"`
	Provider      string         `json:"provider,omitempty"`
	PeriodStartAt time.Time      `json:"period_start_at"`
	PeriodEndAt   time.Time      `json:"period_end_at"`
	Budget        BudgetResponse `json:"budget"`
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, ok := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "period must be day or month")
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	resp := UsageResponse{
		Period:        string(report.Period),
		Provider:      report.Provider,
		PeriodStartAt: report.Start,
		PeriodEndAt:   report.End,
		Budget: BudgetResponse{
			TokensLimit: report.Budget.Limit,
			TokensUsed:  report.Budget.Used,
			IsExhausted: report.Budget.Exhausted,
			ResetsAt:    report.ResetsAt(),
		},
	}
	if !report.Budget.Unlimited() {
		remaining := report.Budget.Remaining
		resp.Budget.TokensRemaining = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens()))
	}
}
