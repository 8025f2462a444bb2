package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/novirelay/internal/proxy"
)

// chatCompletionRequest is the OpenAI-style inbound request.
type chatCompletionRequest struct {
	Model       looseString     `json:"model"`
	Messages    json.RawMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature *float64        `json:"temperature"`
	MaxTokens   *float64        `json:"max_tokens"`
}

func handleChatCompletions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Upstream.HasCredential() {
			httpError(w, http.StatusInternalServerError, missingKeyMessage)
			return
		}

		var req chatCompletionRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		msgs, err := buildMessages(req.Messages, "")
		if err != nil {
			httpError(w, http.StatusBadRequest, "messages required")
			return
		}

		model := deps.resolve(string(req.Model))
		temperature, maxTokens := sampling(req.Temperature, req.MaxTokens)

		slog.Info("chat completions -> upstream",
			"request_id", middleware.GetReqID(r.Context()),
			"requested_model", model.requested,
			"public_model", model.public,
			"upstream_model", model.upstream,
			"stream", req.Stream,
		)

		out := deps.callUpstream(r, proxy.ChatRequest{
			Model:       model.upstream,
			Messages:    msgs,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if !out.OK {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error": map[string]any{
					"message":  upstreamErrorMessage,
					"attempts": attemptsOrEmpty(out.Attempts),
				},
			})
			return
		}

		text := out.CompletionText()
		if req.Stream {
			logStreamEnd(r, deps.Emitter.Stream(r.Context(), w, model.public, text))
			return
		}
		writeJSON(w, http.StatusOK, deps.Emitter.ChatCompletion(model.public, text))
	}
}
