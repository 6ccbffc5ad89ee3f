package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// parseAPIError extracts a human-readable error from the API response and
// wraps it with kind. A 429 is reported as domain.ErrRateLimited; a dead
// context is passed through so callers can tell a timeout from a failure.
func parseAPIError(ctx context.Context, api string, err error, kind error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s request: %w", api, ctxErr)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			api, reqErr.HTTPStatusCode, detail, classify(reqErr.HTTPStatusCode, kind))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			api, apiErr.HTTPStatusCode, apiErr.Message, classify(apiErr.HTTPStatusCode, kind))
	}

	return fmt.Errorf("%s request failed: %v: %w", api, err, kind)
}

func classify(status int, kind error) error {
	if status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return kind
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
