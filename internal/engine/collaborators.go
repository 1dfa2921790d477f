package engine

import "context"

// ToolSpec describes a registered tool, per spec §6's Tool Registry
// contract. Request fields may be literal or functions of the resolved
// params (URLFn/HeadersFn/BodyFn take precedence over their literal
// counterparts when set).
type ToolSpec struct {
	Name   string
	Params map[string]any

	URL       string
	URLFn     func(params map[string]any) (string, error)
	Method    string
	Headers   map[string]string
	HeadersFn func(params map[string]any) (map[string]string, error)
	Body      any
	BodyFn    func(params map[string]any) (any, error)

	TransformResponse func(raw map[string]any) (map[string]any, error)
	TransformError    func(err error) string
}

// ToolResult is what ToolRegistry.ExecuteTool returns.
type ToolResult struct {
	Success bool
	Output  map[string]any
	Err     error
}

// ToolRegistry is the outbound collaborator the api/agent handlers call
// through to actually perform tool invocations.
type ToolRegistry interface {
	GetTool(toolID string) (*ToolSpec, bool)
	ExecuteTool(ctx context.Context, toolID string, params map[string]any, ectx *ExecutionContext) (ToolResult, error)
}

// ProviderRequest is the payload passed to ProviderRegistry.Execute.
type ProviderRequest struct {
	Model          string
	SystemPrompt   string
	Context        string
	Tools          []string
	Temperature    float64
	MaxTokens      int
	APIKey         string
	ResponseFormat string
	WorkflowID     string
	Stream         bool
	Messages       []ChatMessage
}

// ChatMessage is one turn of a conversation forwarded to a provider.
type ChatMessage struct {
	Role    string
	Content string
}

// ProviderResponse is a non-streaming model response.
type ProviderResponse struct {
	Content   string
	Model     string
	Tokens    *TokenUsage
	ToolCalls []ToolCallInfo
	Cost      *float64
}

// StreamingExecution is returned for Stream: true requests: a byte stream
// of the raw wire response plus side-channel execution metadata.
type StreamingExecution struct {
	Stream    <-chan []byte
	Execution map[string]any
}

// ProviderRegistry is the outbound collaborator the agent/router/evaluator
// handlers call through to reach an LLM provider.
type ProviderRegistry interface {
	Execute(ctx context.Context, provider string, req ProviderRequest) (*ProviderResponse, error)
	ExecuteStreaming(ctx context.Context, provider string, req ProviderRequest) (*StreamingExecution, error)
}

// Sandbox runs untrusted function-block code in isolation, given the
// caller's current data object as `input`, and expects a single returned
// value. Timeouts and memory limits are the sandbox's concern; the
// function handler surfaces its errors verbatim.
type Sandbox interface {
	Run(ctx context.Context, code string, input any) (any, error)
}

// EventPublisher forwards workflow lifecycle events to an optional
// realtime sink (SOCKET_SERVER_URL). A no-op implementation is the
// default.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}

// NoopEventPublisher discards every event.
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, string, map[string]any) error { return nil }

// WorkflowLoader resolves an embedded workflow id to its serialized graph,
// used by the workflow(embed) handler.
type WorkflowLoader interface {
	Load(ctx context.Context, workflowID string) (*SerializedWorkflow, error)
}
