package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/novirelay/internal/proxy"
)

// generateRequest is the Ollama-style inbound request. Either a non-empty
// messages array or a prompt is required.
type generateRequest struct {
	Model    looseString     `json:"model"`
	Prompt   looseString     `json:"prompt"`
	Messages json.RawMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature *float64 `json:"temperature"`
		MaxTokens   *float64 `json:"max_tokens"`
	} `json:"options"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Upstream.HasCredential() {
			httpError(w, http.StatusInternalServerError, missingKeyMessage)
			return
		}

		var req generateRequest
		if err := decodeBody(w, r, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		msgs, err := buildMessages(req.Messages, string(req.Prompt))
		if err != nil {
			httpError(w, http.StatusBadRequest, "prompt or messages required")
			return
		}

		model := deps.resolve(string(req.Model))
		temperature, maxTokens := sampling(req.Options.Temperature, req.Options.MaxTokens)

		slog.Info("generate -> upstream",
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
				"error":    upstreamErrorMessage,
				"attempts": attemptsOrEmpty(out.Attempts),
			})
			return
		}

		text := out.CompletionText()
		if req.Stream {
			logStreamEnd(r, deps.Emitter.Stream(r.Context(), w, model.public, text))
			return
		}
		writeJSON(w, http.StatusOK, deps.Emitter.GenerateReply(deps.Identity.Public(), model.upstream, text))
	}
}
