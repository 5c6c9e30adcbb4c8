package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/tidwall/gjson"
)

// DefaultResponsesURL is the OpenAI responses endpoint.
const DefaultResponsesURL = "https://api.openai.com/v1/responses"

const maxResponseBytes = 4 << 20

// OpenAIConfig configures the responses API adapter.
type OpenAIConfig struct {
	ResponsesURL string
	APIKey       string
	Model        string
	HTTPClient   *http.Client
	// Timeout bounds one call; zero leaves the caller's deadline alone.
	Timeout time.Duration
}

// OpenAIBackend calls the OpenAI responses API.
type OpenAIBackend struct {
	cfg OpenAIConfig
}

// NewOpenAIBackend builds an adapter with defaults for empty fields.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.ResponsesURL) == "" {
		cfg.ResponsesURL = DefaultResponsesURL
	}
	return &OpenAIBackend{cfg: cfg}
}

// Generate implements Backend.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	apiKey := strings.TrimSpace(b.cfg.APIKey)
	model := strings.TrimSpace(b.cfg.Model)
	input := strings.TrimSpace(prompt.Input)
	if apiKey == "" {
		return Response{}, apperrors.New(apperrors.CodeInvalidInput, "api key is required")
	}
	if model == "" {
		return Response{}, apperrors.New(apperrors.CodeInvalidInput, "model is required")
	}
	if input == "" {
		return Response{}, apperrors.New(apperrors.CodeInvalidInput, "input is required")
	}
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	body := map[string]any{
		"model": model,
		"input": input,
	}
	if s := strings.TrimSpace(prompt.System); s != "" {
		body["instructions"] = s
	}
	if prompt.MaxTokens > 0 {
		body["max_output_tokens"] = prompt.MaxTokens
	}
	if prompt.Tools {
		body["tools"] = ToolDefinitions()
	}
	requestBody, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshal generation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.ResponsesURL, bytes.NewReader(requestBody))
	if err != nil {
		return Response{}, fmt.Errorf("build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The key is sent only as an Authorization header and never echoed in
	// errors.
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := b.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return Response{}, apperrors.Wrap(apperrors.CodeCancelled, "generation cancelled", err)
		}
		return Response{}, apperrors.Wrap(apperrors.CodeBackendUnavailable, "generation request failed", err)
	}
	defer res.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Response{}, apperrors.Wrap(apperrors.CodeBackendUnavailable, "read generation response", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := fmt.Sprintf("generation status %d: %s", res.StatusCode, truncate(strings.TrimSpace(string(payload)), 512))
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return Response{}, apperrors.New(apperrors.CodeBackendUnavailable, msg)
		}
		return Response{}, apperrors.New(apperrors.CodeExecutionError, msg)
	}
	if !gjson.ValidBytes(payload) {
		return Response{}, apperrors.New(apperrors.CodeExecutionError, "generation response is not json")
	}
	return parseResponses(payload), nil
}

// parseResponses extracts text and function calls from a responses payload.
func parseResponses(payload []byte) Response {
	var (
		out  Response
		raw  []RawToolCall
		text = strings.TrimSpace(gjson.GetBytes(payload, "output_text").String())
	)
	gjson.GetBytes(payload, "output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "function_call":
			name := item.Get("name").String()
			args := item.Get("arguments").String()
			switch name {
			case suggestChallengeTool:
				var s ChallengeSuggestion
				if json.Unmarshal([]byte(args), &s) == nil && s.ChallengeID != "" {
					out.ChallengeSuggestion = &s
				}
			case suggestEventTool:
				var s EventSuggestion
				if json.Unmarshal([]byte(args), &s) == nil && s.EventID != "" {
					out.EventSuggestion = &s
				}
			default:
				raw = append(raw, RawToolCall{Name: name, Arguments: args})
			}
		default:
			if text != "" {
				return true
			}
			item.Get("content").ForEach(func(_, content gjson.Result) bool {
				if t := strings.TrimSpace(content.Get("text").String()); t != "" {
					text = t
					return false
				}
				return true
			})
		}
		return true
	})
	out.Text = text
	out.ToolCalls, out.UnknownTools = DecodeToolCalls(raw)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
