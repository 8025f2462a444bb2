package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/novirelay/internal/models"
	"github.com/kalambet/novirelay/internal/observability"
	"github.com/kalambet/novirelay/internal/proxy"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 512

	upstreamErrorMessage = "novita_upstream_error"
	missingKeyMessage    = "NOVITA_API_KEY missing"
)

var errNoMessages = errors.New("no usable messages")

// looseString accepts a JSON string, number or boolean and keeps its text.
// null, false and 0 decode as "" so they count as absent. Objects and arrays
// are rejected.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = looseString(val)
	case float64:
		if val == 0 {
			*s = ""
			return nil
		}
		*s = looseString(bytes.TrimSpace(data))
	case bool:
		*s = ""
		if val {
			*s = "true"
		}
	default:
		return fmt.Errorf("cannot use %s as a string", bytes.TrimSpace(data))
	}
	return nil
}

// decodeBody decodes a JSON request body capped at maxRequestBodySize. An
// empty body decodes as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// buildMessages returns the caller's message list when it is a non-empty
// array, otherwise a single user message wrapping prompt. Chat-style callers
// pass an empty prompt.
func buildMessages(messages json.RawMessage, prompt string) (json.RawMessage, error) {
	if hasMessages(messages) {
		return messages, nil
	}
	if prompt != "" {
		return json.Marshal([]proxy.Message{{Role: "user", Content: prompt}})
	}
	return nil, errNoMessages
}

func hasMessages(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return false
	}
	return len(arr) > 0
}

// sampling applies the relay defaults to caller-supplied sampling parameters.
func sampling(temperature, maxTokens *float64) (float64, int) {
	t, n := defaultTemperature, defaultMaxTokens
	if temperature != nil {
		t = *temperature
	}
	if maxTokens != nil {
		n = int(*maxTokens)
	}
	return t, n
}

// resolvedModel holds the two canonical forms of a caller's model name.
type resolvedModel struct {
	requested string
	public    string
	upstream  string
}

func (d Deps) resolve(requested string) resolvedModel {
	public, match := d.Identity.Resolve(requested)
	observability.ModelMatchesTotal.WithLabelValues(string(match)).Inc()
	if match == models.MatchFallback {
		slog.Debug("unrecognized model name coerced to public model", "requested", requested, "public", public)
	}
	return resolvedModel{
		requested: requested,
		public:    public,
		upstream:  d.Identity.MapToUpstream(public),
	}
}

// callUpstream forwards req and logs the outcome. Total failure is counted
// and logged with the full attempt list.
func (d Deps) callUpstream(r *http.Request, req proxy.ChatRequest) proxy.Outcome {
	out := d.Upstream.Call(r.Context(), req)
	reqID := middleware.GetReqID(r.Context())
	if out.Canceled {
		slog.Debug("upstream pass canceled by caller", "request_id", reqID, "attempts", len(out.Attempts))
		return out
	}
	if !out.OK {
		observability.UpstreamExhaustedTotal.Inc()
		slog.Warn("upstream attempts all failed", "request_id", reqID, "attempts", out.Attempts)
		return out
	}
	slog.Info("upstream non-stream ok",
		"request_id", reqID,
		"url", out.SourceURL,
		"empty", out.CompletionText() == "",
		"failed_attempts", len(out.Attempts),
	)
	return out
}

// attemptsOrEmpty keeps the attempts field a JSON array even when nothing was tried.
func attemptsOrEmpty(a []proxy.Attempt) []proxy.Attempt {
	if a == nil {
		return []proxy.Attempt{}
	}
	return a
}

func logStreamEnd(r *http.Request, err error) {
	if err != nil {
		slog.Debug("simulated stream ended early",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
}
