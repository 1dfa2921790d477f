package clients

import (
	"context"
	"net/http"
)

// HTTPEventPublisher forwards workflow lifecycle events to SOCKET_SERVER_URL
// (spec §6's realtime sink, fanned out to subscribed UI clients by that
// service — this port only has to POST the event, not fan it out itself),
// grounded on the teacher's OrchestratorClient request-building pattern.
// A zero-value BaseURL makes Publish a no-op, matching
// engine.NoopEventPublisher's default behavior when the sink isn't
// configured.
type HTTPEventPublisher struct {
	http    *HTTPClient
	baseURL string
}

// NewHTTPEventPublisher builds a publisher posting to baseURL + "/events".
// An empty baseURL yields a publisher whose Publish always succeeds as a
// no-op.
func NewHTTPEventPublisher(httpClient *http.Client, log Logger, baseURL string) *HTTPEventPublisher {
	return &HTTPEventPublisher{http: NewHTTPClient(httpClient, log), baseURL: baseURL}
}

func (p *HTTPEventPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	if p.baseURL == "" {
		return nil
	}
	body := map[string]any{"type": eventType, "payload": payload}
	return p.http.DoJSON(ctx, http.MethodPost, p.baseURL+"/events", nil, body, nil)
}
