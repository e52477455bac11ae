package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aceinterview/internal/config"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Observability.Enabled = true
	cfg.Observability.ServiceName = "aceinterview-test"
	cfg.Observability.SampleRate = 1
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.CustomMetrics.BackendOperations.Enabled = true
	cfg.Observability.CustomMetrics.BackendOperations.TrackDuration = true
	cfg.Observability.CustomMetrics.SessionMetrics.Enabled = true
	cfg.Observability.CustomMetrics.SessionMetrics.TrackScores = true
	cfg.Observability.CustomMetrics.Infrastructure.TrackRateLimits = true
	return cfg
}

// newManualManager builds a manager whose metrics can be read back in-process
func newManualManager(t *testing.T, cfg *config.Config) (*ObservabilityManager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	om := &ObservabilityManager{
		config:        GetObservabilityConfig(cfg, "test"),
		fullConfig:    cfg,
		meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	if err := om.initCustomMetrics(); err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	t.Cleanup(func() { _ = om.meterProvider.Shutdown(context.Background()) })
	return om, reader
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += int64(dp.Count)
				}
			}
		}
	}
	return sums
}

func TestObserveBackendOperation(t *testing.T) {
	om, reader := newManualManager(t, testConfig())
	ctx := context.Background()

	om.ObserveBackendOperation(ctx, "evaluate_answer", 120*time.Millisecond, nil)
	om.ObserveBackendOperation(ctx, "evaluate_answer", time.Second, errors.New("boom"))
	om.ObserveBackendOperation(ctx, "parse_resume", 10*time.Millisecond, nil)

	sums := collectSums(t, reader)
	expected := map[string]int64{
		"aceinterview_backend_requests_total":           3,
		"aceinterview_backend_errors_total":             1,
		"aceinterview_backend_request_duration_seconds": 3,
		"aceinterview_answers_evaluated_total":          2,
		"aceinterview_resumes_parsed_total":             1,
	}
	for name, want := range expected {
		if sums[name] != want {
			t.Errorf("Expected %s = %d, got %d", name, want, sums[name])
		}
	}
}

func TestMetricTogglesAreHonored(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.CustomMetrics.BackendOperations.Enabled = false
	cfg.Observability.CustomMetrics.SessionMetrics.TrackScores = false
	cfg.Observability.CustomMetrics.Infrastructure.TrackRateLimits = false
	om, reader := newManualManager(t, cfg)
	ctx := context.Background()

	om.ObserveBackendOperation(ctx, "generate_questions", time.Second, nil)
	om.RecordSessionScore(ctx, 9)
	om.RecordBusinessMetric(ctx, MetricRateLimitHit, false)
	om.RecordBusinessMetric(ctx, MetricSessionCompleted, true, attribute.String("domain", "AI Engineer"))

	sums := collectSums(t, reader)
	for _, name := range []string{"aceinterview_backend_requests_total", "aceinterview_session_total_score", "aceinterview_rate_limit_hits_total"} {
		if sums[name] != 0 {
			t.Errorf("Expected %s to stay empty, got %d", name, sums[name])
		}
	}
	if sums["aceinterview_sessions_completed_total"] != 1 {
		t.Errorf("Expected one completed session, got %d", sums["aceinterview_sessions_completed_total"])
	}
}

func TestDisabledManagerIsInert(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Enabled = false

	om, err := NewObservabilityManager(GetObservabilityConfig(cfg, "test"), cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx := context.Background()
	om.ObserveBackendOperation(ctx, "parse_resume", time.Second, nil)
	om.RecordSessionScore(ctx, 5)

	_, span := om.Tracer("test").Start(ctx, "noop")
	if span.IsRecording() {
		t.Error("Expected a non-recording span")
	}
	span.End()

	handler := om.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected passthrough, got %d", rec.Code)
	}

	if err := om.Shutdown(ctx); err != nil {
		t.Errorf("Unexpected shutdown error: %v", err)
	}
}

func TestPrometheusExporterServesMetrics(t *testing.T) {
	reader, mux, err := SetupPrometheusExporter(PrometheusConfig{Enabled: true, Endpoint: "/metrics"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	counter, err := mp.Meter("test").Int64Counter("aceinterview_test_events_total")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	counter.Add(context.Background(), 2)

	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "aceinterview_test_events_total") {
		t.Errorf("Expected exported counter in scrape output")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("Expected Go runtime collector in scrape output")
	}
}

func TestGetObservabilityConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.Console.Enabled = true
	cfg.Observability.Prometheus.Port = "9191"

	obs := GetObservabilityConfig(cfg, "1.2.3")
	if obs.ServiceVersion != "1.2.3" {
		t.Errorf("Expected app version fallback, got %q", obs.ServiceVersion)
	}
	if !obs.ConsoleOutput {
		t.Error("Expected console output from console.enabled")
	}
	if obs.Prometheus.Port != "9191" {
		t.Errorf("Expected prometheus port 9191, got %q", obs.Prometheus.Port)
	}

	if GetObservabilityConfig(nil, "dev").ServiceName != "aceinterview" {
		t.Error("Expected default service name")
	}
}
