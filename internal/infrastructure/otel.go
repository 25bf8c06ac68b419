package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"eventstudy/internal/config"
	"eventstudy/internal/eventstudy"
)

// MeterName is the instrumentation scope of the run metrics
const MeterName = "eventstudy"

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	TraceWriter    io.Writer // span exporter destination; nil keeps spans in-process only
	EnableMetrics  bool
}

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Registry       *promclient.Registry
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
	serviceName    string
	serviceVersion string
}

// OTelConfigFrom builds the OpenTelemetry configuration from the observability section
func OTelConfigFrom(cfg config.ObservabilityConfig) *OTelConfig {
	otelCfg := DefaultOTelConfig()
	if cfg.ServiceName != "" {
		otelCfg.ServiceName = cfg.ServiceName
	}
	if cfg.TraceStdout {
		otelCfg.TraceWriter = os.Stdout
	}
	return otelCfg
}

// DefaultOTelConfig returns a default OpenTelemetry configuration
func DefaultOTelConfig() *OTelConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	return &OTelConfig{
		ServiceName:    config.AppName,
		ServiceVersion: config.AppVersion,
		Environment:    env,
		EnableMetrics:  true,
	}
}

// InitializeOTel installs the tracer and meter providers as globals.
// Metrics go to a dedicated Prometheus registry so several runs in one process never collide.
func InitializeOTel(cfg *OTelConfig, logger *slog.Logger) (*OTelProviders, error) {
	if cfg == nil {
		cfg = DefaultOTelConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}

	ctx := context.Background()

	res := createResource(cfg)
	providers := &OTelProviders{
		Logger:         logger,
		serviceName:    cfg.ServiceName,
		serviceVersion: cfg.ServiceVersion,
	}

	if err := initializeTracing(ctx, cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if cfg.EnableMetrics {
		if err := initializeMetrics(ctx, cfg, res, providers); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.DebugContext(ctx, "OpenTelemetry initialization complete",
		slog.String("service", cfg.ServiceName),
		slog.Bool("trace_export", cfg.TraceWriter != nil),
		slog.Bool("metrics_enabled", cfg.EnableMetrics))

	return providers, nil
}

// createResource creates the OpenTelemetry resource
func createResource(cfg *OTelConfig) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	)
}

// initializeTracing sets up OpenTelemetry tracing
func initializeTracing(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if cfg.TraceWriter != nil {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(cfg.TraceWriter),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(eventstudy.TracerName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetTracerProvider(tp)

	providers.Logger.DebugContext(ctx, "Tracing initialized", slog.Bool("export", cfg.TraceWriter != nil))
	return nil
}

// initializeMetrics sets up OpenTelemetry metrics behind a Prometheus registry
func initializeMetrics(ctx context.Context, cfg *OTelConfig, res *resource.Resource, providers *OTelProviders) error {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	providers.Registry = registry
	providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	otel.SetMeterProvider(mp)

	providers.Logger.DebugContext(ctx, "Metrics initialized", slog.String("exporter", "prometheus"))
	return nil
}

// RunMetrics holds the event-study run instruments
type RunMetrics struct {
	Runs          metric.Int64Counter
	RunDuration   metric.Float64Histogram
	Events        metric.Int64Counter
	Firms         metric.Int64Counter
	PanelRows     metric.Int64Counter
	UndefinedCARs metric.Int64Counter
}

// CreateRunMetrics creates the run instruments on meter
func CreateRunMetrics(meter metric.Meter) (*RunMetrics, error) {
	runs, err := meter.Int64Counter(
		"eventstudy_runs_total",
		metric.WithDescription("Total number of event-study runs"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"eventstudy_run_duration_seconds",
		metric.WithDescription("Event-study run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter(
		"eventstudy_events_total",
		metric.WithDescription("Input events by cleaning outcome"),
	)
	if err != nil {
		return nil, err
	}

	firms, err := meter.Int64Counter(
		"eventstudy_firms_total",
		metric.WithDescription("Firms by market-model estimation status"),
	)
	if err != nil {
		return nil, err
	}

	panelRows, err := meter.Int64Counter(
		"eventstudy_panel_rows_total",
		metric.WithDescription("Firm-event-day rows built by the window builder"),
	)
	if err != nil {
		return nil, err
	}

	undefined, err := meter.Int64Counter(
		"eventstudy_undefined_cars_total",
		metric.WithDescription("CARs without any contributing abnormal return, by column"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		Runs:          runs,
		RunDuration:   runDuration,
		Events:        events,
		Firms:         firms,
		PanelRows:     panelRows,
		UndefinedCARs: undefined,
	}, nil
}

// RecordRun records one finished run. diag may be nil when the run failed before producing diagnostics.
func (m *RunMetrics) RecordRun(ctx context.Context, diag *eventstudy.Diagnostics, duration time.Duration, runErr error) {
	if m == nil {
		return
	}

	status := "success"
	if runErr != nil {
		status = "failure"
		if errors.Is(runErr, context.Canceled) {
			status = "cancelled"
		}
	}
	statusAttr := metric.WithAttributes(attribute.String("status", status))
	m.Runs.Add(ctx, 1, statusAttr)
	m.RunDuration.Record(ctx, duration.Seconds(), statusAttr)

	if diag == nil {
		return
	}

	outcome := func(v string) metric.AddOption {
		return metric.WithAttributes(attribute.String("outcome", v))
	}
	m.Events.Add(ctx, int64(diag.EventsKept), outcome("kept"))
	m.Events.Add(ctx, int64(diag.EventsMissingKey), outcome("missing_key"))
	m.Events.Add(ctx, int64(diag.EventsDuplicate), outcome("duplicate"))

	firmStatus := func(v eventstudy.ParamStatus) metric.AddOption {
		return metric.WithAttributes(attribute.String("status", string(v)))
	}
	m.Firms.Add(ctx, int64(diag.FirmsEstimated), firmStatus(eventstudy.ParamsEstimated))
	m.Firms.Add(ctx, int64(diag.FirmsInsufficient), firmStatus(eventstudy.ParamsInsufficient))
	m.Firms.Add(ctx, int64(diag.FirmsDegenerate), firmStatus(eventstudy.ParamsDegenerate))

	m.PanelRows.Add(ctx, int64(diag.PanelRows))

	columns := make([]string, 0, len(diag.UndefinedCARs))
	for col := range diag.UndefinedCARs {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	for _, col := range columns {
		m.UndefinedCARs.Add(ctx, int64(diag.UndefinedCARs[col]), metric.WithAttributes(attribute.String("column", col)))
	}
}

// WriteMetricsTextfile dumps the registry in the Prometheus text format, for node-exporter textfile collection
func (p *OTelProviders) WriteMetricsTextfile(path string) error {
	if p.Registry == nil {
		return fmt.Errorf("metrics are disabled")
	}
	return promclient.WriteToTextfile(path, p.Registry)
}

// ServiceName returns the service name reported on every span and metric
func (p *OTelProviders) ServiceName() string {
	return p.serviceName
}

// ServiceVersion returns the reported service version
func (p *OTelProviders) ServiceVersion() string {
	return p.serviceVersion
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("opentelemetry shutdown errors: %v", errs)
	}

	p.Logger.DebugContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// TraceIDFromContext extracts trace ID from context for logging correlation
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// AddSpanEvent adds an event to the current span with structured attributes
func AddSpanEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for _, k := range keys {
		switch val := attributes[k].(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, options ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.RecordError(err, options...)
	span.SetStatus(codes.Error, err.Error())
}
