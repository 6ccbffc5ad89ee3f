package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
	"github.com/kailas-cloud/finrag/internal/usecase/chat"
)

// ChatConfig holds the chat model settings.
type ChatConfig struct {
	Config
	Temperature float32
	MaxTokens   int
}

// ChatDecider implements chat.Decider on the chat completions API with function tools.
type ChatDecider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	user        string
	logger      *zap.Logger
}

// NewChatDecider creates a chat model client.
func NewChatDecider(cfg *ChatConfig) *ChatDecider {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatDecider{
		client:      newClient(&cfg.Config),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		user:        cfg.User,
		logger:      logger,
	}
}

// Decide lets the model answer or pick one function from functions.
func (d *ChatDecider) Decide(ctx context.Context, messages []chat.Message, functions []chat.FunctionSpec) (chat.Decision, error) {
	req := d.request(messages)
	if len(functions) > 0 {
		req.Tools = toTools(functions)
		req.ToolChoice = "auto"
	}

	msg, err := d.complete(ctx, "decide", req)
	if err != nil {
		return chat.Decision{}, err
	}

	dec := chat.Decision{Text: msg.Content}
	switch {
	case len(msg.ToolCalls) > 0:
		tc := msg.ToolCalls[0]
		if len(msg.ToolCalls) > 1 {
			d.logger.Debug("Model requested several tool calls, using the first",
				zap.Int("count", len(msg.ToolCalls)), zap.String("function", tc.Function.Name))
		}
		dec.Call = &chat.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	case msg.FunctionCall != nil:
		dec.Call = &chat.FunctionCall{Name: msg.FunctionCall.Name, Arguments: msg.FunctionCall.Arguments}
	}
	return dec, nil
}

// Answer asks for a free-form reply without offering any function.
func (d *ChatDecider) Answer(ctx context.Context, messages []chat.Message) (string, error) {
	msg, err := d.complete(ctx, "answer", d.request(messages))
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (d *ChatDecider) request(messages []chat.Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       d.model,
		Messages:    toMessages(messages),
		Temperature: d.temperature,
		User:        d.user,
	}
	if d.maxTokens > 0 {
		req.MaxTokens = d.maxTokens
	}
	return req
}

func (d *ChatDecider) complete(
	ctx context.Context, kind string, req openai.ChatCompletionRequest,
) (openai.ChatCompletionMessage, error) {
	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, req)
	metrics.ChatModelRequestDuration.WithLabelValues(d.model, kind).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ChatModelRequestsTotal.WithLabelValues(d.model, kind, "error").Inc()
		return openai.ChatCompletionMessage{}, parseAPIError(ctx, "chat", err, domain.ErrModelProviderError)
	}
	if len(resp.Choices) == 0 {
		metrics.ChatModelRequestsTotal.WithLabelValues(d.model, kind, "error").Inc()
		return openai.ChatCompletionMessage{}, fmt.Errorf("empty chat response: %w", domain.ErrModelProviderError)
	}

	metrics.ChatModelRequestsTotal.WithLabelValues(d.model, kind, "success").Inc()
	metrics.ChatModelTokensTotal.WithLabelValues(d.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.ChatModelTokensTotal.WithLabelValues(d.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	return resp.Choices[0].Message, nil
}

func toMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case chat.RoleSystem:
			msg.Role = openai.ChatMessageRoleSystem
		case chat.RoleAssistant:
			msg.Role = openai.ChatMessageRoleAssistant
			if m.Call != nil {
				msg.ToolCalls = []openai.ToolCall{{
					ID:   m.Call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      m.Call.Name,
						Arguments: m.Call.Arguments,
					},
				}}
			}
		case chat.RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.CallID
		default:
			msg.Role = openai.ChatMessageRoleUser
		}
		out = append(out, msg)
	}
	return out
}

func toTools(specs []chat.FunctionSpec) []openai.Tool {
	tools := make([]openai.Tool, len(specs))
	for i, s := range specs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		}
	}
	return tools
}
