package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/novirelay/internal/observability"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodyPreview = 800
	maxBodySize    = 16 << 20
)

// Gateway delivers chat completion requests to the first endpoint that
// answers successfully. The endpoint list is fixed at construction.
type Gateway struct {
	apiKey     string
	endpoints  []string
	httpClient *http.Client
}

// NewGateway creates a Gateway that tries endpoints in the given order.
func NewGateway(apiKey string, endpoints []string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewGatewayWithClient(apiKey, endpoints, &http.Client{Timeout: timeout})
}

// NewGatewayWithClient creates a Gateway using a caller-supplied HTTP client (for testing).
func NewGatewayWithClient(apiKey string, endpoints []string, httpClient *http.Client) *Gateway {
	eps := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e = strings.TrimSpace(e); e != "" {
			eps = append(eps, e)
		}
	}
	return &Gateway{
		apiKey:     apiKey,
		endpoints:  eps,
		httpClient: httpClient,
	}
}

// Endpoints returns a copy of the endpoint priority list.
func (g *Gateway) Endpoints() []string {
	out := make([]string, len(g.endpoints))
	copy(out, g.endpoints)
	return out
}

// HasCredential reports whether an API key is configured.
func (g *Gateway) HasCredential() bool {
	return g.apiKey != ""
}

// Call makes a single pass over the endpoint list. HTTP and transport
// failures are recorded and the next endpoint is tried. A success status with
// a body that is not JSON aborts the pass immediately, and so does
// cancellation of ctx. Call never returns an error; every failure is described
// by the returned Outcome.
func (g *Gateway) Call(ctx context.Context, req ChatRequest) Outcome {
	req.Stream = false
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{Attempts: []Attempt{{Error: fmt.Sprintf("marshaling request: %v", err)}}}
	}

	var attempts []Attempt
	for _, url := range g.endpoints {
		if ctx.Err() != nil {
			return Outcome{Attempts: attempts, Canceled: true}
		}

		start := time.Now()
		status, respBody, err := g.post(ctx, url, body)
		observability.UpstreamLatency.WithLabelValues(url).Observe(time.Since(start).Seconds())

		// A cancelled caller says nothing about this endpoint or the ones after it.
		if err != nil && ctx.Err() != nil {
			observability.UpstreamAttemptsTotal.WithLabelValues(url, "canceled").Inc()
			slog.Debug("upstream pass canceled", "url", url, "error", ctx.Err())
			return Outcome{Attempts: attempts, Canceled: true}
		}

		if err != nil {
			observability.UpstreamAttemptsTotal.WithLabelValues(url, "transport_error").Inc()
			slog.Debug("upstream attempt failed", "url", url, "error", err)
			attempts = append(attempts, Attempt{URL: url, Error: err.Error()})
			continue
		}

		if status < 200 || status > 299 {
			observability.UpstreamAttemptsTotal.WithLabelValues(url, "http_error").Inc()
			slog.Debug("upstream attempt rejected", "url", url, "status", status)
			attempts = append(attempts, Attempt{URL: url, Status: status, Body: truncate(respBody, maxBodyPreview)})
			continue
		}

		if !json.Valid(respBody) {
			observability.UpstreamAttemptsTotal.WithLabelValues(url, "invalid_json").Inc()
			var v any
			parseErr := json.Unmarshal(respBody, &v)
			return Outcome{Attempts: []Attempt{{
				URL:    url,
				Status: status,
				Detail: fmt.Sprintf("invalid_json: %v", parseErr),
				Body:   truncate(respBody, maxBodyPreview),
			}}}
		}

		observability.UpstreamAttemptsTotal.WithLabelValues(url, "ok").Inc()
		return Outcome{OK: true, Data: json.RawMessage(respBody), SourceURL: url, Attempts: attempts}
	}

	return Outcome{Attempts: attempts}
}

func (g *Gateway) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// truncate returns at most n characters of b.
func truncate(b []byte, n int) string {
	s := string(b)
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
