package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
	"github.com/louisbranch/gmloop/internal/services/narrator/domain/outcome"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewOpenAIBackendDefaults(t *testing.T) {
	b := NewOpenAIBackend(OpenAIConfig{})
	if b.cfg.HTTPClient == nil {
		t.Fatal("expected non-nil HTTP client")
	}
	if b.cfg.ResponsesURL != DefaultResponsesURL {
		t.Fatalf("responses_url = %q", b.cfg.ResponsesURL)
	}
}

func TestOpenAIBackendValidation(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("round trip should not execute for validation failure: %v", req.URL)
		return nil, nil
	})}
	tests := []struct {
		name   string
		cfg    OpenAIConfig
		prompt Prompt
	}{
		{name: "missing key", cfg: OpenAIConfig{Model: "m", HTTPClient: client}, prompt: Prompt{Input: "hi"}},
		{name: "missing model", cfg: OpenAIConfig{APIKey: "k", HTTPClient: client}, prompt: Prompt{Input: "hi"}},
		{name: "missing input", cfg: OpenAIConfig{APIKey: "k", Model: "m", HTTPClient: client}, prompt: Prompt{Input: "  "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOpenAIBackend(tc.cfg).Generate(context.Background(), tc.prompt)
			if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
				t.Fatalf("err = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestOpenAIBackendParsesOutput(t *testing.T) {
	var sent map[string]any
	client := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization = %q", got)
		}
		if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return response(http.StatusOK, `{
			"output": [
				{"type": "message", "content": [{"type": "output_text", "text": "  The barkeep slides a key across the counter. "}]},
				{"type": "function_call", "name": "give_item", "arguments": "{\"item_name\":\"Brass Key\"}"},
				{"type": "function_call", "name": "npc_change_relationship_v2", "arguments": "{\"change\":\"improve\",\"amount\":\"slight\"}"},
				{"type": "function_call", "name": "summon_dragon", "arguments": "{}"},
				{"type": "function_call", "name": "suggest_challenge", "arguments": "{\"challenge_id\":\"pick-lock\",\"dc\":12}"}
			]
		}`), nil
	})}
	b := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", Model: "gpt-test", HTTPClient: client})
	resp, err := b.Generate(context.Background(), Prompt{System: "You are the barkeep.", Input: "Ask for the key", MaxTokens: 300, Tools: true})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "The barkeep slides a key across the counter." {
		t.Fatalf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(resp.ToolCalls))
	}
	if item, ok := resp.ToolCalls[0].(outcome.GiveItemCall); !ok || item.ItemName != "Brass Key" {
		t.Fatalf("tool call[0] = %#v", resp.ToolCalls[0])
	}
	if _, ok := resp.ToolCalls[1].(outcome.ChangeRelationshipCall); !ok {
		t.Fatalf("tool call[1] = %#v", resp.ToolCalls[1])
	}
	if len(resp.UnknownTools) != 1 || resp.UnknownTools[0].Name != "summon_dragon" {
		t.Fatalf("unknown tools = %+v", resp.UnknownTools)
	}
	if resp.ChallengeSuggestion == nil || resp.ChallengeSuggestion.DC != 12 {
		t.Fatalf("challenge suggestion = %+v", resp.ChallengeSuggestion)
	}
	if sent["instructions"] != "You are the barkeep." || sent["max_output_tokens"] != float64(300) {
		t.Fatalf("request = %v", sent)
	}
	if _, ok := sent["tools"]; !ok {
		t.Fatal("expected tools in request")
	}
}

func TestOpenAIBackendPrefersOutputText(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"output_text":"direct","output":[{"type":"message","content":[{"text":"nested"}]}]}`), nil
	})}
	resp, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", Model: "m", HTTPClient: client}).Generate(context.Background(), Prompt{Input: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "direct" {
		t.Fatalf("text = %q, want %q", resp.Text, "direct")
	}
}

func TestOpenAIBackendErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   apperrors.Code
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, want: apperrors.CodeBackendUnavailable},
		{name: "server error", status: http.StatusBadGateway, want: apperrors.CodeBackendUnavailable},
		{name: "bad request", status: http.StatusBadRequest, want: apperrors.CodeExecutionError},
		{name: "network", err: errors.New("connection reset"), want: apperrors.CodeBackendUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				if tc.err != nil {
					return nil, tc.err
				}
				return response(tc.status, `{"error":{"message":"nope"}}`), nil
			})}
			_, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", Model: "m", HTTPClient: client}).Generate(context.Background(), Prompt{Input: "x"})
			if got := apperrors.CodeOf(err); got != tc.want {
				t.Fatalf("code = %q, want %q (err %v)", got, tc.want, err)
			}
		})
	}
}
