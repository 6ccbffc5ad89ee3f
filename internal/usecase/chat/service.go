// Package chat answers one user question per call: it reframes follow-ups,
// lets the model pick catalog functions in a bounded loop and records the
// exchange in the session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
	"github.com/kailas-cloud/finrag/internal/domain/report"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Defaults for Config zero values.
const (
	DefaultMaxIterations   = 5
	DefaultDecisionTimeout = 30 * time.Second
	DefaultToolTimeout     = 25 * time.Second
	DefaultRequestTimeout  = 150 * time.Second
	DefaultHistoryTurns    = 6
)

// Config bounds one request.
type Config struct {
	MaxIterations   int
	DecisionTimeout time.Duration
	ToolTimeout     time.Duration
	RequestTimeout  time.Duration // bounds all decisions and tools of one request
	HistoryTurns    int           // prior turns replayed to the model
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.DecisionTimeout <= 0 {
		c.DecisionTimeout = DefaultDecisionTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = 0
	} else if c.HistoryTurns == 0 {
		c.HistoryTurns = DefaultHistoryTurns
	}
	return c
}

// User-facing texts for non-responded outcomes.
const (
	msgCappedOut   = "I could not finish answering within %d steps. Please narrow or rephrase the question."
	msgTimedOut    = "The request timed out while waiting for %s. Please try again or narrow the question."
	msgToolMissing = "I could not answer: tool not found: %s."
	msgStore       = "I could not answer because the database query failed."
	msgProvider    = "I could not answer because the language model is unavailable right now."
	msgInternal    = "I could not answer because of an internal error."
	msgEmptyAnswer = "I do not have an answer to that."
)

const systemPrompt = `You are a financial assistant for a company's ledger.
Today is %s. Amounts are in the ledger currency; expenses are negative.
Use the available functions to look up data before answering questions about transactions,
categories, counterparties or spending. Call one function at a time. When a function returns
data, answer from it concisely and cite figures exactly. If nothing matches, say so.
Answer in the language of the user's question.`

// Service runs the orchestration loop.
type Service struct {
	decider  Decider
	catalog  *Catalog
	sessions Sessions
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a chat service.
func New(decider Decider, catalog *Catalog, sessions Sessions, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		decider:  decider,
		catalog:  catalog,
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		logger:   logger,
	}
}

// run is the mutable state of one request.
type run struct {
	reply    Reply
	messages []Message
	log      *zap.Logger
}

// Process answers query within session sessionID; an empty id starts a new
// session. It never returns an error: every failure becomes a Reply outcome.
func (s *Service) Process(ctx context.Context, sessionID, query string) Reply {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	r := &run{
		reply: Reply{SessionID: sessionID},
		log:   s.logger.With(zap.String("session_id", sessionID)),
	}

	fctx, err := s.sessions.Context(ctx, sessionID)
	if err != nil {
		r.log.Warn("Session context unavailable", zap.Error(err))
	}
	reframed := conversation.Reframe(query, fctx)
	r.reply.ReframedQuery = reframed
	if reframed != query {
		r.log.Debug("Query reframed", zap.String("query", query), zap.String("reframed", reframed))
	}

	r.messages = s.prelude(ctx, sessionID, r.log)
	r.messages = append(r.messages, Message{Role: RoleUser, Content: reframed})

	// Sessions are still written with ctx after the budget runs out.
	budgetCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	if IsKnowledgeQuery(reframed) {
		s.answerKnowledge(budgetCtx, r)
	} else {
		s.loop(budgetCtx, r)
	}
	cancel()

	s.finish(ctx, r, query, reframed)
	return r.reply
}

// prelude builds the system message and replays recent history.
func (s *Service) prelude(ctx context.Context, id string, log *zap.Logger) []Message {
	system := fmt.Sprintf(systemPrompt, s.now().UTC().Format("2006-01-02"))
	if summary, err := s.sessions.Summary(ctx, id); err == nil && summary != "" {
		system += "\n\nConversation so far:\n" + summary
	}
	msgs := []Message{{Role: RoleSystem, Content: system}}

	turns, err := s.sessions.Turns(ctx, id)
	if err != nil {
		log.Warn("Session history unavailable", zap.Error(err))
		return msgs
	}
	if len(turns) > s.cfg.HistoryTurns {
		turns = turns[len(turns)-s.cfg.HistoryTurns:]
	}
	for _, t := range turns {
		role := RoleUser
		if t.Role == conversation.RoleAssistant {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: t.Text})
	}
	return msgs
}

func (s *Service) answerKnowledge(ctx context.Context, r *run) {
	r.reply.Iterations = 1
	text, err := callWithTimeout(ctx, s.cfg.DecisionTimeout, func(ctx context.Context) (string, error) {
		return s.decider.Answer(ctx, r.messages)
	})
	if err != nil {
		s.fail(r, err, "the language model")
		return
	}
	r.reply.Outcome = OutcomeKnowledge
	r.reply.Text = nonEmpty(text)
}

func (s *Service) loop(ctx context.Context, r *run) {
	specs := s.catalog.Specs()

	for iter := 1; iter <= s.cfg.MaxIterations; iter++ {
		r.reply.Iterations = iter

		dec, err := callWithTimeout(ctx, s.cfg.DecisionTimeout, func(ctx context.Context) (Decision, error) {
			return s.decider.Decide(ctx, r.messages, specs)
		})
		if err != nil {
			s.fail(r, err, "the language model")
			return
		}
		if dec.Call == nil {
			r.reply.Outcome = OutcomeResponded
			r.reply.Text = nonEmpty(dec.Text)
			r.log.Debug("Chat iteration", zap.Int("iteration", iter), zap.String("outcome", "responded"))
			return
		}

		call := *dec.Call
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d", iter)
		}
		r.reply.FunctionsCalled = append(r.reply.FunctionsCalled, call.Name)
		r.messages = append(r.messages, Message{Role: RoleAssistant, Content: dec.Text, Call: &call})

		fn, ok := s.catalog.Lookup(call.Name)
		if !ok {
			metrics.ChatFunctionCallsTotal.WithLabelValues("unknown", "error").Inc()
			s.fail(r, fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Name), call.Name)
			return
		}

		content, status, err := s.invoke(ctx, fn, call)
		metrics.ChatFunctionCallsTotal.WithLabelValues(call.Name, status).Inc()
		r.log.Debug("Chat iteration",
			zap.Int("iteration", iter),
			zap.String("function", call.Name),
			zap.String("status", status),
			zap.Error(err),
		)
		if err != nil {
			s.fail(r, err, "function "+call.Name)
			return
		}
		r.messages = append(r.messages, Message{Role: RoleTool, Content: content, CallID: call.ID})
	}

	r.reply.Outcome = OutcomeCappedOut
	r.reply.Text = fmt.Sprintf(msgCappedOut, s.cfg.MaxIterations)
	r.log.Info("Chat iteration cap reached", zap.Error(domain.ErrIterationCap))
}

// invoke runs one function and renders its result for the model. Rejected
// arguments and empty results are reported back to the model, not to the user.
func (s *Service) invoke(ctx context.Context, fn Function, call FunctionCall) (string, string, error) {
	args, err := ParseArgs(call.Arguments)
	if err != nil {
		return fmt.Sprintf("Function %s rejected the arguments: %v. Fix them and try again.", call.Name, err), "rejected", nil
	}

	start := time.Now()
	res, err := callWithTimeout(ctx, s.cfg.ToolTimeout, func(ctx context.Context) (report.Result, error) {
		return fn.Invoke(ctx, args)
	})
	metrics.ChatFunctionDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "", "timeout", err
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrReadOnlyViolation):
		return fmt.Sprintf("Function %s rejected the arguments: %v. Fix them and try again.", call.Name, err), "rejected", nil
	case err != nil:
		return "", "error", err
	case res == nil || res.Len() == 0:
		return report.NoResults(call.Name), "empty", nil
	}
	return report.Format(call.Name, res), "ok", nil
}

// fail maps a terminal error to an outcome and user-facing text.
func (s *Service) fail(r *run, err error, waitingFor string) {
	r.reply.Outcome = OutcomeErrored
	switch {
	case errors.Is(err, domain.ErrTimeout):
		r.reply.Outcome = OutcomeTimedOut
		r.reply.Text = fmt.Sprintf(msgTimedOut, waitingFor)
	case errors.Is(err, domain.ErrToolNotFound):
		r.reply.Text = fmt.Sprintf(msgToolMissing, waitingFor)
	case errors.Is(err, domain.ErrStore):
		r.reply.Text = msgStore
	case errors.Is(err, domain.ErrModelProviderError),
		errors.Is(err, domain.ErrEmbeddingProviderError),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrEmbeddingQuotaExceeded):
		r.reply.Text = msgProvider
	default:
		r.reply.Text = msgInternal
	}
	r.log.Warn("Chat request failed",
		zap.String("outcome", string(r.reply.Outcome)),
		zap.Int("iteration", r.reply.Iterations),
		zap.Error(err),
	)
}

// finish records the exchange. Session write failures never change the reply.
func (s *Service) finish(ctx context.Context, r *run, query, reframed string) {
	if err := s.sessions.AppendTurn(ctx, r.reply.SessionID, conversation.RoleUser, query); err != nil {
		r.log.Warn("Append user turn failed", zap.Error(err))
	}
	if err := s.sessions.AppendTurn(ctx, r.reply.SessionID, conversation.RoleAssistant, r.reply.Text); err != nil {
		r.log.Warn("Append assistant turn failed", zap.Error(err))
	}
	if err := s.sessions.UpdateSummary(ctx, r.reply.SessionID, reframed, r.reply.Text); err != nil {
		r.log.Warn("Update summary failed", zap.Error(err))
	}

	metrics.ChatRequestsTotal.WithLabelValues(string(r.reply.Outcome)).Inc()
	metrics.ChatIterations.Observe(float64(r.reply.Iterations))
	r.log.Info("Chat request finished",
		zap.String("outcome", string(r.reply.Outcome)),
		zap.Int("iterations", r.reply.Iterations),
		zap.Strings("functions", r.reply.FunctionsCalled),
	)
}

func nonEmpty(text string) string {
	if t := strings.TrimSpace(text); t != "" {
		return t
	}
	return msgEmptyAnswer
}

// callWithTimeout bounds fn by d even when fn ignores its context. A deadline
// hit is reported as domain.ErrTimeout.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return res.v, fmt.Errorf("%w: %w", domain.ErrTimeout, res.err)
		}
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", domain.ErrTimeout, d)
		}
		return zero, ctx.Err() //nolint:wrapcheck // caller cancellation
	}
}
