package clients

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"sim.studio/executor/internal/engine"
)

// ProviderEndpoint describes how to reach one LLM provider's gateway.
type ProviderEndpoint struct {
	BaseURL string
	APIKey  string
}

// ProviderRegistry dispatches engine.ProviderRequest over HTTP to a
// configured gateway per provider name (e.g. "openai", "anthropic"),
// generalizing the teacher's OrchestratorClient (a named base-URL plus an
// HTTPClient, decoding a JSON envelope) from one fixed orchestrator API to
// an arbitrary set of provider endpoints resolved by name.
type ProviderRegistry struct {
	http      *HTTPClient
	log       Logger
	endpoints map[string]ProviderEndpoint
}

// NewProviderRegistry builds a registry over the given provider->endpoint
// table, read once at startup from environment/config the way the
// teacher's own client constructors are.
func NewProviderRegistry(httpClient *http.Client, log Logger, endpoints map[string]ProviderEndpoint) *ProviderRegistry {
	return &ProviderRegistry{
		http:      NewHTTPClient(httpClient, log),
		log:       log,
		endpoints: endpoints,
	}
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Tools          []string      `json:"tools,omitempty"`
	ResponseFormat string        `json:"response_format,omitempty"`
	Stream         bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Cost *float64 `json:"cost"`
}

func (r *ProviderRegistry) buildRequest(req engine.ProviderRequest) chatCompletionRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	return chatCompletionRequest{
		Model:          req.Model,
		Messages:       messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		Tools:          req.Tools,
		ResponseFormat: req.ResponseFormat,
	}
}

func (r *ProviderRegistry) endpoint(provider string) (ProviderEndpoint, error) {
	ep, ok := r.endpoints[provider]
	if !ok {
		return ProviderEndpoint{}, fmt.Errorf("provider %q has no configured endpoint", provider)
	}
	return ep, nil
}

// Execute issues a non-streaming chat completion request.
func (r *ProviderRegistry) Execute(ctx context.Context, provider string, req engine.ProviderRequest) (*engine.ProviderResponse, error) {
	ep, err := r.endpoint(provider)
	if err != nil {
		return nil, err
	}

	body := r.buildRequest(req)
	body.Stream = false

	headers := map[string]string{"Authorization": "Bearer " + apiKeyFor(req, ep)}

	var out chatCompletionResponse
	if err := r.http.DoJSON(ctx, http.MethodPost, ep.BaseURL+"/chat/completions", headers, body, &out); err != nil {
		return nil, fmt.Errorf("provider %q: %w", provider, err)
	}

	resp := &engine.ProviderResponse{Content: out.Content, Model: out.Model, Cost: out.Cost}
	if out.Usage != nil {
		resp.Tokens = engine.NewTokenUsage(out.Usage.PromptTokens, out.Usage.CompletionTokens)
	}
	return resp, nil
}

// ExecuteStreaming issues a streaming chat completion request and forwards
// the raw response body as newline-delimited chunks over a channel. The
// channel is closed when the upstream body is exhausted or ctx is
// cancelled; the HTTP response is always drained and closed internally.
func (r *ProviderRegistry) ExecuteStreaming(ctx context.Context, provider string, req engine.ProviderRequest) (*engine.StreamingExecution, error) {
	ep, err := r.endpoint(provider)
	if err != nil {
		return nil, err
	}

	body := r.buildRequest(req)
	body.Stream = true

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode streaming request: %w", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKeyFor(req, ep)}
	resp, err := r.http.Do(ctx, http.MethodPost, ep.BaseURL+"/chat/completions", headers, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("provider %q streaming request: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("provider %q streaming request: status %d", provider, resp.StatusCode)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			chunk := make([]byte, len(line))
			copy(chunk, line)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			r.log.Warn("provider stream read error", "provider", provider, "error", err)
		}
	}()

	return &engine.StreamingExecution{
		Stream:    out,
		Execution: map[string]any{"provider": provider, "model": req.Model, "workflowId": req.WorkflowID},
	}, nil
}

func apiKeyFor(req engine.ProviderRequest, ep ProviderEndpoint) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return ep.APIKey
}
