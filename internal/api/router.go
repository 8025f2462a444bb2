package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/novirelay/internal/models"
	"github.com/kalambet/novirelay/internal/observability"
	"github.com/kalambet/novirelay/internal/proxy"
	"github.com/kalambet/novirelay/internal/stream"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Upstream delivers chat requests to the inference provider.
type Upstream interface {
	Call(ctx context.Context, req proxy.ChatRequest) proxy.Outcome
	Endpoints() []string
	HasCredential() bool
}

// Deps are the collaborators shared by every handler. All of them are
// read-only after startup.
type Deps struct {
	Identity *models.Identity
	Upstream Upstream
	Emitter  *stream.Emitter
}

// NewRouter returns an http.Handler serving both chat dialects, the
// informational routes and /metrics.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.MetricsMiddleware)
	r.Use(recoverJSON)

	r.Get("/healthz", handleHealth(deps))
	r.Get("/api/tags", handleTags(deps))
	r.Post("/api/pull", handlePull(deps))
	r.Post("/api/generate", handleGenerate(deps))
	r.Post("/v1/chat/completions", handleChatCompletions(deps))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":               true,
			"public_model":     deps.Identity.Public(),
			"upstream_base":    deps.Identity.UpstreamBase(),
			"aliases":          deps.Identity.Aliases(),
			"novita_endpoints": deps.Upstream.Endpoints(),
		})
	}
}

type tagEntry struct {
	Name     string   `json:"name"`
	Upstream string   `json:"upstream"`
	Aliases  []string `json:"aliases"`
}

func handleTags(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []tagEntry{{
				Name:     deps.Identity.Public(),
				Upstream: deps.Identity.UpstreamBase(),
				Aliases:  deps.Identity.Aliases(),
			}},
		})
	}
}

// handlePull acknowledges an Ollama pull without downloading anything.
func handlePull(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model looseString `json:"model"`
			Name  looseString `json:"name"`
		}
		// A malformed body pulls the public model.
		_ = decodeBody(w, r, &req)

		model := firstNonEmpty(string(req.Model), string(req.Name), deps.Identity.Public())

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)
		for _, status := range []string{"pulling " + model, "verifying sha256", "writing manifest", "success"} {
			if err := enc.Encode(map[string]string{"status": status}); err != nil {
				slog.Debug("pull status write failed", "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// recoverJSON converts a handler panic into a 500 JSON response.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("unhandled handler panic",
				"panic", rec,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "unhandled",
				"message": fmt.Sprint(rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	if err := stream.WriteJSON(w, code, v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

// httpError writes the flat error shape {"error": msg}.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{"error": fmt.Sprintf(format, args...)})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
