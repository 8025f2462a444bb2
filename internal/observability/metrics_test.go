package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("writing counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, vec *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	var m dto.Metric
	obs, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram: %v", err)
	}
	if err := obs.(prometheus.Histogram).Write(&m); err != nil {
		t.Fatalf("writing histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// TestMetricsRegistered verifies that every collector is in the default registry.
func TestMetricsRegistered(t *testing.T) {
	UpstreamAttemptsTotal.WithLabelValues("http://seed", "ok").Inc()
	UpstreamLatency.WithLabelValues("http://seed").Observe(0.1)
	RequestsTotal.WithLabelValues("GET", "/seed", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/seed").Observe(0.1)
	ModelMatchesTotal.WithLabelValues("seed").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"novirelay_requests_total":               false,
		"novirelay_request_duration_seconds":     false,
		"novirelay_streaming_connections_active": false,
		"novirelay_upstream_attempts_total":      false,
		"novirelay_upstream_latency_seconds":     false,
		"novirelay_upstream_exhausted_total":     false,
		"novirelay_model_matches_total":          false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "/items/{id}", "2xx")
	beforeHist := histogramCount(t, RequestDuration, "GET", "/items/{id}")

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	if got := counterValue(t, RequestsTotal, "GET", "/items/{id}", "2xx") - before; got != 1 {
		t.Errorf("request count delta = %v, want 1", got)
	}
	if got := histogramCount(t, RequestDuration, "GET", "/items/{id}") - beforeHist; got != 1 {
		t.Errorf("duration sample delta = %d, want 1", got)
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "/fail", "5xx")

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Post("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/fail", nil))

	if got := counterValue(t, RequestsTotal, "POST", "/fail", "5xx") - before; got != 1 {
		t.Errorf("5xx count delta = %v, want 1", got)
	}
}

func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.Write([]byte("data"))
	sw.Flush()

	if !rec.Flushed {
		t.Error("Flush was not delegated to the underlying writer")
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap did not return the underlying writer")
	}
}
