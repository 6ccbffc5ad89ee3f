package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
	"github.com/kailas-cloud/finrag/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
	"github.com/kailas-cloud/finrag/internal/usecase/pipeline"
)

// --- Mocks ---

type mockChat struct {
	reply     chat.Reply
	gotID     string
	gotQuery  string
	embedUsed int
}

func (m *mockChat) Process(ctx context.Context, sessionID, query string) chat.Reply {
	m.gotID, m.gotQuery = sessionID, query
	if m.embedUsed > 0 {
		domain.UsageFromContext(ctx).AddTokens(m.embedUsed)
	}
	r := m.reply
	if r.SessionID == "" {
		r.SessionID = "generated-id"
	}
	return r
}

type mockSessions struct {
	snap     conversation.Snapshot
	err      error
	clearErr error
	cleared  string
}

func (m *mockSessions) Snapshot(context.Context, string) (conversation.Snapshot, error) {
	return m.snap, m.err
}

func (m *mockSessions) Clear(_ context.Context, id string) error {
	m.cleared = id
	return m.clearErr
}

type mockRunner struct {
	mu        sync.Mutex
	calls     []pipeline.Mode
	since     time.Time
	release   chan struct{}
	done      chan struct{}
	status    domain.EmbeddingStatus
	statusErr error
}

func newMockRunner() *mockRunner {
	return &mockRunner{release: make(chan struct{}), done: make(chan struct{}, 4)}
}

func (m *mockRunner) run(ctx context.Context, mode pipeline.Mode, since time.Time) (pipeline.Report, error) {
	m.mu.Lock()
	m.calls = append(m.calls, mode)
	m.since = since
	m.mu.Unlock()
	defer func() { m.done <- struct{}{} }()

	select {
	case <-m.release:
		return pipeline.Report{Mode: mode, Succeeded: 3}, nil
	case <-ctx.Done():
		return pipeline.Report{Mode: mode}, ctx.Err()
	}
}

func (m *mockRunner) RunFull(ctx context.Context, _ string) (pipeline.Report, error) {
	return m.run(ctx, pipeline.ModeFull, time.Time{})
}

func (m *mockRunner) RunIncremental(ctx context.Context, _ string, since time.Time) (pipeline.Report, error) {
	return m.run(ctx, pipeline.ModeIncremental, since)
}

func (m *mockRunner) Status(context.Context, string) (domain.EmbeddingStatus, error) {
	return m.status, m.statusErr
}

type mockUsage struct {
	report domusage.Report
}

func (m *mockUsage) GetReport(_ context.Context, p domusage.Period) domusage.Report {
	r := m.report
	r.Period = p
	return r
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type fixture struct {
	server   *Server
	handler  http.Handler
	chat     *mockChat
	sessions *mockSessions
	runner   *mockRunner
	usage    *mockUsage
	health   *mockHealth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chat:     &mockChat{},
		sessions: &mockSessions{},
		runner:   newMockRunner(),
		usage:    &mockUsage{},
		health:   &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	f.server = NewServer(f.chat, f.sessions, f.runner, f.usage, f.health, nil)
	f.handler = f.server.Routes()
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// --- Chat ---

func TestChat_OK(t *testing.T) {
	f := newFixture(t)
	f.chat.reply = chat.Reply{
		SessionID:       "s1",
		Text:            "Marketing led with 5000.00.",
		Outcome:         chat.OutcomeResponded,
		ReframedQuery:   "top categories in 2024",
		Iterations:      2,
		FunctionsCalled: []string{"top_expense_categories"},
	}
	f.chat.embedUsed = 12

	rec := f.do(http.MethodPost, "/v1/chat", ChatRequest{SessionID: " s1 ", Query: "  top categories in 2024 "})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.chat.gotID != "s1" || f.chat.gotQuery != "top categories in 2024" {
		t.Errorf("service got id=%q query=%q", f.chat.gotID, f.chat.gotQuery)
	}
	if rec.Header().Get("X-Embedding-Tokens") != "12" {
		t.Errorf("expected X-Embedding-Tokens 12, got %q", rec.Header().Get("X-Embedding-Tokens"))
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	resp := decode[ChatResponse](t, rec)
	if resp.Answer != "Marketing led with 5000.00." || resp.Outcome != "responded" || resp.Iterations != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestChat_FailureOutcomeIsStill200(t *testing.T) {
	f := newFixture(t)
	f.chat.reply = chat.Reply{Outcome: chat.OutcomeTimedOut, Text: "The request timed out."}

	rec := f.do(http.MethodPost, "/v1/chat", ChatRequest{Query: "slow question"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[ChatResponse](t, rec)
	if resp.Outcome != "timed_out" || resp.SessionID != "generated-id" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.FunctionsCalled == nil {
		t.Error("functions_called must be an empty list, not null")
	}
}

func TestChat_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body any
		code ErrorCode
	}{
		{"bad json", `{"query":`, CodeBadRequest},
		{"empty query", ChatRequest{Query: "   "}, CodeValidationFailed},
		{"too long", ChatRequest{Query: string(bytes.Repeat([]byte("a"), maxQueryLen+1))}, CodeValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/chat", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := decode[ErrorResponse](t, rec); got.Code != tc.code {
				t.Errorf("expected code %q, got %q", tc.code, got.Code)
			}
		})
	}
}

// --- Sessions ---

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	f.sessions.snap = conversation.Snapshot{
		ID:        "s1",
		Turns:     []conversation.Turn{{Role: conversation.RoleUser, Text: "hi", At: at}},
		Summary:   conversation.Summary{Categories: []string{"marketing"}},
		UpdatedAt: at,
	}

	rec := f.do(http.MethodGet, "/v1/sessions/s1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[SessionResponse](t, rec)
	if resp.ID != "s1" || len(resp.Turns) != 1 || resp.Turns[0].Role != "user" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Summary.Categories) != 1 {
		t.Errorf("summary not returned: %+v", resp.Summary)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t)
	f.sessions.err = fmt.Errorf("session missing: %w", domain.ErrNotFound)

	rec := f.do(http.MethodGet, "/v1/sessions/missing", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != CodeNotFound {
		t.Errorf("expected %q, got %q", CodeNotFound, got.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodDelete, "/v1/sessions/s1", nil)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if f.sessions.cleared != "s1" {
		t.Errorf("expected s1 cleared, got %q", f.sessions.cleared)
	}
}

func TestDeleteSession_StoreError(t *testing.T) {
	f := newFixture(t)
	f.sessions.clearErr = domain.NewStoreError("delete", errors.New("conn reset"))

	rec := f.do(http.MethodDelete, "/v1/sessions/s1", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Message != domain.ErrStore.Error() {
		t.Errorf("internal detail leaked: %q", got.Message)
	}
}

// --- Embedding runs ---

func waitDone(t *testing.T, r *mockRunner) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not finish")
	}
}

func TestStartEmbeddingRun_Full(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/admin/embeddings", EmbeddingRunRequest{EntityID: "acme"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decode[EmbeddingRunResponse](t, rec); resp.Mode != "full" || resp.EntityID != "acme" {
		t.Errorf("unexpected response: %+v", resp)
	}

	close(f.runner.release)
	waitDone(t, f.runner)
	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if len(f.runner.calls) != 1 || f.runner.calls[0] != pipeline.ModeFull {
		t.Errorf("unexpected runs: %v", f.runner.calls)
	}
}

func TestStartEmbeddingRun_SinceImpliesIncremental(t *testing.T) {
	f := newFixture(t)
	close(f.runner.release)

	rec := f.do(http.MethodPost, "/v1/admin/embeddings", EmbeddingRunRequest{EntityID: "acme", Since: "2025-03-01"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	waitDone(t, f.runner)
	f.runner.mu.Lock()
	defer f.runner.mu.Unlock()
	if f.runner.calls[0] != pipeline.ModeIncremental {
		t.Errorf("expected incremental run, got %v", f.runner.calls)
	}
	if !f.runner.since.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected since: %s", f.runner.since)
	}
}

func TestStartEmbeddingRun_ConflictWhileRunning(t *testing.T) {
	f := newFixture(t)

	first := f.do(http.MethodPost, "/v1/admin/embeddings", EmbeddingRunRequest{EntityID: "acme"})
	second := f.do(http.MethodPost, "/v1/admin/embeddings", EmbeddingRunRequest{EntityID: "acme"})

	if first.Code != http.StatusAccepted || second.Code != http.StatusConflict {
		t.Fatalf("expected 202 then 409, got %d then %d", first.Code, second.Code)
	}

	f.runner.status = domain.EmbeddingStatus{Total: 10, Missing: 4}
	rec := f.do(http.MethodGet, "/v1/admin/embeddings/status?entity_id=acme", nil)
	if st := decode[EmbeddingStatusResponse](t, rec); !st.Running || st.Embedded != 6 {
		t.Errorf("unexpected status: %+v", st)
	}

	close(f.runner.release)
	waitDone(t, f.runner)
}

func TestStartEmbeddingRun_CloseCancels(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/admin/embeddings", EmbeddingRunRequest{EntityID: "acme"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	f.server.Close()
	waitDone(t, f.runner)
}

func TestStartEmbeddingRun_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body EmbeddingRunRequest
	}{
		{"missing entity", EmbeddingRunRequest{}},
		{"bad since", EmbeddingRunRequest{EntityID: "acme", Since: "03/01/2025"}},
		{"bad mode", EmbeddingRunRequest{EntityID: "acme", Mode: "partial"}},
		{"incremental without since", EmbeddingRunRequest{EntityID: "acme", Mode: "incremental"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := f.do(http.MethodPost, "/v1/admin/embeddings", tc.body); rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("no run may start on invalid input, got %v", f.runner.calls)
	}
}

func TestEmbeddingStatus_RequiresEntity(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/v1/admin/embeddings/status", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestEmbeddingStatus_Counts(t *testing.T) {
	f := newFixture(t)
	f.runner.status = domain.EmbeddingStatus{Total: 5_000_000_000, Missing: 1_250_000_000}

	rec := f.do(http.MethodGet, "/v1/admin/embeddings/status?entity_id=acme", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	st := decode[EmbeddingStatusResponse](t, rec)
	if st.EntityID != "acme" || st.Running {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Total != 5_000_000_000 || st.Missing != 1_250_000_000 || st.Embedded != 3_750_000_000 {
		t.Errorf("counts = %d/%d/%d", st.Total, st.Missing, st.Embedded)
	}
}

// --- Usage, health, misc ---

func TestGetUsage(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	f.usage.report = domusage.Report{
		Provider: "nebius",
		Start:    start,
		End:      start.AddDate(0, 1, 0),
		Budget:   domusage.NewBudget(1000, 250),
	}

	rec := f.do(http.MethodGet, "/v1/usage?period=month", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decode[UsageResponse](t, rec)
	if resp.Period != "month" || resp.Budget.TokensUsed != 250 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Budget.TokensRemaining == nil || *resp.Budget.TokensRemaining != 750 {
		t.Errorf("expected 750 remaining, got %v", resp.Budget.TokensRemaining)
	}
}

func TestGetUsage_UnlimitedOmitsRemaining(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/usage", nil)

	resp := decode[UsageResponse](t, rec)
	if resp.Period != "day" || resp.Budget.TokensRemaining != nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetUsage_BadPeriod(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/v1/usage?period=total", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	f.health.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{healthuc.ComponentRedis: healthuc.CheckError},
	}
	rec := f.do(http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if resp := decode[HealthResponse](t, rec); resp.Checks["redis"] != "error" {
		t.Errorf("unexpected checks: %+v", resp.Checks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/collections", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != CodeNotFound {
		t.Errorf("expected %q, got %q", CodeNotFound, got.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	f := newFixture(t)
	h := jsonRecoverer(f.server.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != CodeInternalError {
		t.Errorf("expected %q, got %q", CodeInternalError, got.Code)
	}
}
