package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"aceinterview/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Business metric types accepted by RecordBusinessMetric
const (
	MetricResumeParsed       = "resume_parsed"
	MetricQuestionsGenerated = "questions_generated"
	MetricAnswerEvaluated    = "answer_evaluated"
	MetricSessionCompleted   = "session_completed"
	MetricRateLimitHit       = "rate_limit_hit"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	ConsoleOutput  bool
	PrettyPrint    bool
	SampleRate     float64
	Prometheus     PrometheusConfig
}

// Metrics holds all custom metrics
type Metrics struct {
	// Backend operation metrics
	BackendDuration metric.Float64Histogram
	BackendRequests metric.Int64Counter
	BackendErrors   metric.Int64Counter

	// Session metrics
	ResumesParsed      metric.Int64Counter
	QuestionsGenerated metric.Int64Counter
	AnswersEvaluated   metric.Int64Counter
	SessionsCompleted  metric.Int64Counter
	SessionScore       metric.Float64Histogram

	// Rate limiting metrics
	RateLimitHits metric.Int64Counter
}

// ObservabilityManager manages OpenTelemetry setup
type ObservabilityManager struct {
	config           ObservabilityConfig
	fullConfig       *config.Config // Store full config for access to nested settings
	resource         *resource.Resource
	tracerProvider   *trace.TracerProvider
	meterProvider    *sdkmetric.MeterProvider
	metrics          *Metrics
	shutdownFuncs    []func(context.Context) error
	prometheusServer *http.Server
}

// NewObservabilityManager creates a new observability manager
func NewObservabilityManager(obsConfig ObservabilityConfig, fullConfig *config.Config) (*ObservabilityManager, error) {
	if !obsConfig.Enabled {
		return &ObservabilityManager{config: obsConfig, fullConfig: fullConfig}, nil
	}

	om := &ObservabilityManager{
		config:        obsConfig,
		fullConfig:    fullConfig,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	if err := om.initResource(); err != nil {
		return nil, fmt.Errorf("failed to initialize resource: %w", err)
	}

	if err := om.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := om.initMetrics(); err != nil {
		_ = om.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return om, nil
}

// initResource creates the OpenTelemetry resource shared by traces and metrics
func (om *ObservabilityManager) initResource() error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(om.config.ServiceName),
			semconv.ServiceVersion(om.config.ServiceVersion),
			attribute.String("service.instance.id", om.getServiceInstanceID()),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	om.resource = res
	return nil
}

// initTracing sets up OpenTelemetry tracing
func (om *ObservabilityManager) initTracing() error {
	var exporter trace.SpanExporter
	var err error

	if om.config.ConsoleOutput {
		// Console exporter for development
		opts := []stdouttrace.Option{}
		if om.config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(opts...)
	} else if om.fullConfig != nil && om.fullConfig.Observability.OTLP.Enabled {
		exporter, err = om.createOTLPExporter()
	}

	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(om.resource),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(om.config.SampleRate))),
	}
	// Without an exporter spans are still created so trace ids propagate to the backend
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}

	tp := trace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)

	return nil
}

// initMetrics sets up OpenTelemetry metrics
func (om *ObservabilityManager) initMetrics() error {
	readers, err := om.setupMetricReaders()
	if err != nil {
		return err
	}

	meterProviderOptions := []sdkmetric.Option{
		sdkmetric.WithResource(om.resource),
	}
	for _, reader := range readers {
		meterProviderOptions = append(meterProviderOptions, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(meterProviderOptions...)

	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	return om.initCustomMetrics()
}

// setupMetricReaders sets up all metric readers based on configuration
func (om *ObservabilityManager) setupMetricReaders() ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader

	if om.fullConfig != nil && !om.fullConfig.Observability.Metrics.Enabled {
		return []sdkmetric.Reader{sdkmetric.NewManualReader()}, nil
	}

	// Console exporter for development
	if err := om.setupConsoleReader(&readers); err != nil {
		return nil, err
	}

	// OTLP exporter for production metrics
	if err := om.setupOTLPReader(&readers); err != nil {
		return nil, err
	}

	if err := om.setupPrometheusReader(&readers); err != nil {
		return nil, err
	}

	// If no readers configured, use manual reader as fallback
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}

	return readers, nil
}

// setupConsoleReader sets up console metric reader if enabled
func (om *ObservabilityManager) setupConsoleReader(readers *[]sdkmetric.Reader) error {
	if !om.config.ConsoleOutput {
		return nil
	}

	exporter, err := stdoutmetric.New()
	if err != nil {
		return fmt.Errorf("failed to create console metric exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	*readers = append(*readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	return nil
}

// setupOTLPReader sets up OTLP metric reader if enabled
func (om *ObservabilityManager) setupOTLPReader(readers *[]sdkmetric.Reader) error {
	if om.fullConfig == nil || !om.fullConfig.Observability.OTLP.Enabled {
		return nil
	}

	otlpReader, err := om.createOTLPMetricsReader()
	if err != nil {
		return fmt.Errorf("failed to create OTLP metrics reader: %w", err)
	}
	*readers = append(*readers, otlpReader)
	return nil
}

// setupPrometheusReader sets up Prometheus metric reader and its scrape server if enabled
func (om *ObservabilityManager) setupPrometheusReader(readers *[]sdkmetric.Reader) error {
	if !om.config.Prometheus.Enabled {
		return nil
	}

	prometheusReader, prometheusMux, err := SetupPrometheusExporter(om.config.Prometheus)
	if err != nil {
		return fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	*readers = append(*readers, prometheusReader)

	server, err := StartPrometheusServer(prometheusMux, om.config.Prometheus.Port)
	if err != nil {
		return fmt.Errorf("failed to start Prometheus server: %w", err)
	}
	om.prometheusServer = server
	om.shutdownFuncs = append(om.shutdownFuncs, server.Shutdown)
	return nil
}

// initCustomMetrics creates all custom metrics
func (om *ObservabilityManager) initCustomMetrics() error {
	meter := om.meterProvider.Meter(om.config.ServiceName)
	om.metrics = &Metrics{}

	if err := om.createBackendMetrics(meter); err != nil {
		return err
	}

	if err := om.createSessionMetrics(meter); err != nil {
		return err
	}

	return om.createRateLimitMetrics(meter)
}

// createBackendMetrics creates backend call metrics
func (om *ObservabilityManager) createBackendMetrics(meter metric.Meter) error {
	var err error

	om.metrics.BackendDuration, err = meter.Float64Histogram(
		"aceinterview_backend_request_duration_seconds",
		metric.WithDescription("Time spent waiting on the interview backend"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend duration metric: %w", err)
	}

	om.metrics.BackendRequests, err = meter.Int64Counter(
		"aceinterview_backend_requests_total",
		metric.WithDescription("Total number of backend requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend request count metric: %w", err)
	}

	om.metrics.BackendErrors, err = meter.Int64Counter(
		"aceinterview_backend_errors_total",
		metric.WithDescription("Total number of failed backend requests"),
	)
	if err != nil {
		return fmt.Errorf("failed to create backend error count metric: %w", err)
	}

	return nil
}

// createSessionMetrics creates practice session metrics
func (om *ObservabilityManager) createSessionMetrics(meter metric.Meter) error {
	var err error

	om.metrics.ResumesParsed, err = meter.Int64Counter(
		"aceinterview_resumes_parsed_total",
		metric.WithDescription("Total number of resumes uploaded for parsing"),
	)
	if err != nil {
		return fmt.Errorf("failed to create resumes parsed metric: %w", err)
	}

	om.metrics.QuestionsGenerated, err = meter.Int64Counter(
		"aceinterview_question_sets_generated_total",
		metric.WithDescription("Total number of question sets generated"),
	)
	if err != nil {
		return fmt.Errorf("failed to create questions generated metric: %w", err)
	}

	om.metrics.AnswersEvaluated, err = meter.Int64Counter(
		"aceinterview_answers_evaluated_total",
		metric.WithDescription("Total number of answers evaluated"),
	)
	if err != nil {
		return fmt.Errorf("failed to create answers evaluated metric: %w", err)
	}

	om.metrics.SessionsCompleted, err = meter.Int64Counter(
		"aceinterview_sessions_completed_total",
		metric.WithDescription("Total number of practice sessions that reached the results"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sessions completed metric: %w", err)
	}

	om.metrics.SessionScore, err = meter.Float64Histogram(
		"aceinterview_session_total_score",
		metric.WithDescription("Final total score of completed sessions"),
		metric.WithExplicitBucketBoundaries(2, 4, 6, 7, 8, 9, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to create session score metric: %w", err)
	}

	return nil
}

// createRateLimitMetrics creates rate limiting metrics
func (om *ObservabilityManager) createRateLimitMetrics(meter metric.Meter) error {
	var err error

	om.metrics.RateLimitHits, err = meter.Int64Counter(
		"aceinterview_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return nil
}

// HTTPMiddleware returns HTTP middleware with OpenTelemetry instrumentation
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if !om.config.Enabled {
		return func(h http.Handler) http.Handler { return h }
	}

	return otelhttp.NewMiddleware(
		om.config.ServiceName,
		otelhttp.WithTracerProvider(om.tracerProvider),
		otelhttp.WithMeterProvider(om.meterProvider),
	)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if !om.config.Enabled || om.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return om.tracerProvider.Tracer(name)
}

// Shutdown gracefully shuts down all observability components
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range om.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	om.shutdownFuncs = nil
	return errors.Join(errs...)
}

// ObserveBackendOperation records one backend call. It lets the backend
// client report to the manager without importing it.
func (om *ObservabilityManager) ObserveBackendOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	m := om.metrics
	if m == nil || m.BackendRequests == nil {
		return
	}
	if om.fullConfig != nil && !om.fullConfig.Observability.CustomMetrics.BackendOperations.Enabled {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)

	if om.fullConfig == nil || om.fullConfig.Observability.CustomMetrics.BackendOperations.TrackDuration {
		m.BackendDuration.Record(ctx, duration.Seconds(), attrs)
	}
	m.BackendRequests.Add(ctx, 1, attrs)

	if err != nil {
		m.BackendErrors.Add(ctx, 1, attrs)
		span := oteltrace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
	}

	om.RecordBusinessMetric(ctx, businessMetricFor(operation), err == nil)
}

func businessMetricFor(operation string) string {
	switch operation {
	case "parse_resume":
		return MetricResumeParsed
	case "generate_questions":
		return MetricQuestionsGenerated
	case "evaluate_answer":
		return MetricAnswerEvaluated
	default:
		return ""
	}
}

// RecordBusinessMetric records business-specific metrics
func (om *ObservabilityManager) RecordBusinessMetric(ctx context.Context, metricType string, success bool, attributes ...attribute.KeyValue) {
	m := om.metrics
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(append([]attribute.KeyValue{
		attribute.Bool("success", success),
	}, attributes...)...)

	switch metricType {
	case MetricResumeParsed:
		if om.sessionMetricsEnabled() {
			m.ResumesParsed.Add(ctx, 1, attrs)
		}
	case MetricQuestionsGenerated:
		if om.sessionMetricsEnabled() {
			m.QuestionsGenerated.Add(ctx, 1, attrs)
		}
	case MetricAnswerEvaluated:
		if om.sessionMetricsEnabled() {
			m.AnswersEvaluated.Add(ctx, 1, attrs)
		}
	case MetricSessionCompleted:
		if om.sessionMetricsEnabled() {
			m.SessionsCompleted.Add(ctx, 1, attrs)
		}
	case MetricRateLimitHit:
		// Rate limiting is an infrastructure metric
		if om.fullConfig != nil && !om.fullConfig.Observability.CustomMetrics.Infrastructure.TrackRateLimits {
			return
		}
		m.RateLimitHits.Add(ctx, 1, attrs)
	}
}

// RecordSessionScore records the final total of a finished session
func (om *ObservabilityManager) RecordSessionScore(ctx context.Context, total float64, attributes ...attribute.KeyValue) {
	if om.metrics == nil || !om.sessionMetricsEnabled() {
		return
	}
	if om.fullConfig != nil && !om.fullConfig.Observability.CustomMetrics.SessionMetrics.TrackScores {
		return
	}
	om.metrics.SessionScore.Record(ctx, total, metric.WithAttributes(attributes...))
}

func (om *ObservabilityManager) sessionMetricsEnabled() bool {
	return om.fullConfig == nil || om.fullConfig.Observability.CustomMetrics.SessionMetrics.Enabled
}

// createOTLPExporter creates an OTLP HTTP trace exporter
func (om *ObservabilityManager) createOTLPExporter() (trace.SpanExporter, error) {
	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return exporter, nil
}

// createOTLPMetricsReader creates an OTLP HTTP metrics reader
func (om *ObservabilityManager) createOTLPMetricsReader() (sdkmetric.Reader, error) {
	otlpConfig := om.fullConfig.Observability.OTLP

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(otlpConfig.Endpoint),
	}
	if otlpConfig.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlpConfig.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlpConfig.Headers))
	}

	exporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}

	interval := om.getMetricsCollectionInterval()
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

// getServiceInstanceID returns the service instance ID from config or generates one
func (om *ObservabilityManager) getServiceInstanceID() string {
	if om.fullConfig != nil && om.fullConfig.Observability.ServiceInstance != "" {
		return om.fullConfig.Observability.ServiceInstance
	}
	return om.config.ServiceName + "-1"
}

// getMetricsCollectionInterval returns the configured metrics collection interval
func (om *ObservabilityManager) getMetricsCollectionInterval() time.Duration {
	if om.fullConfig != nil && om.fullConfig.Observability.Metrics.CollectionInterval > 0 {
		return om.fullConfig.Observability.Metrics.CollectionInterval
	}
	return 15 * time.Second
}
