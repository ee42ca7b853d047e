// Package observability provides the OpenTelemetry metrics collector and the
// Prometheus scrape endpoint for the agent core.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/xudanli/tripnaraht-sub002/internal/shared/logging"
)

// MetricsConfig configures the collector.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// MetricsCollector manages the core's OpenTelemetry instruments. A disabled
// collector is a valid no-op value.
type MetricsCollector struct {
	meter metric.Meter

	requestsTotal  metric.Int64Counter
	requestLatency metric.Float64Histogram
	routerDuration metric.Float64Histogram
	tokensEstimate metric.Int64Counter
	costEstimate   metric.Float64Counter

	actionExecutions metric.Int64Counter
	actionDuration   metric.Float64Histogram
	browserSteps     metric.Int64Counter

	requestsActive metric.Int64UpDownCounter

	prometheusServer *http.Server
	logger           logging.Logger
}

// NewMetricsCollector builds the collector and, when a port is configured,
// starts the Prometheus scrape server.
func NewMetricsCollector(config MetricsConfig, logger logging.Logger) (*MetricsCollector, error) {
	logger = logging.OrNop(logger)
	if !config.Enabled {
		return &MetricsCollector{logger: logger}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("tripnar")

	requestsTotal, err := meter.Int64Counter(
		"tripnar.requests.total",
		metric.WithDescription("Total agent requests handled"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}

	requestLatency, err := meter.Float64Histogram(
		"tripnar.request.latency",
		metric.WithDescription("End-to-end request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	routerDuration, err := meter.Float64Histogram(
		"tripnar.router.duration",
		metric.WithDescription("Router classification duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create router histogram: %w", err)
	}

	tokensEstimate, err := meter.Int64Counter(
		"tripnar.tokens.estimate",
		metric.WithDescription("Estimated tokens processed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tokens counter: %w", err)
	}

	costEstimate, err := meter.Float64Counter(
		"tripnar.cost.estimate",
		metric.WithDescription("Estimated request cost"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cost counter: %w", err)
	}

	actionExecutions, err := meter.Int64Counter(
		"tripnar.action.executions.total",
		metric.WithDescription("Total action executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create action counter: %w", err)
	}

	actionDuration, err := meter.Float64Histogram(
		"tripnar.action.duration",
		metric.WithDescription("Action execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create action histogram: %w", err)
	}

	browserSteps, err := meter.Int64Counter(
		"tripnar.browser.steps.total",
		metric.WithDescription("Total browser steps consumed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create browser counter: %w", err)
	}

	requestsActive, err := meter.Int64UpDownCounter(
		"tripnar.requests.active",
		metric.WithDescription("Requests currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active gauge: %w", err)
	}

	collector := &MetricsCollector{
		meter:            meter,
		requestsTotal:    requestsTotal,
		requestLatency:   requestLatency,
		routerDuration:   routerDuration,
		tokensEstimate:   tokensEstimate,
		costEstimate:     costEstimate,
		actionExecutions: actionExecutions,
		actionDuration:   actionDuration,
		browserSteps:     browserSteps,
		requestsActive:   requestsActive,
		logger:           logger,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("start prometheus server: %w", err)
		}
	}
	return collector, nil
}

// StartPrometheusServer exposes /metrics on the given port.
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		m.logger.Info("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Prometheus server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the scrape server.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records one completed agent request.
func (m *MetricsCollector) RecordRequest(ctx context.Context, route, status string, latency, routerLatency time.Duration, tokensEst int, costEst float64) {
	if m.requestsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("route", route),
		attribute.String("status", status),
	}
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.requestLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	m.routerDuration.Record(ctx, routerLatency.Seconds(), metric.WithAttributes(attribute.String("route", route)))
	if tokensEst > 0 {
		m.tokensEstimate.Add(ctx, int64(tokensEst), metric.WithAttributes(attribute.String("route", route)))
	}
	if costEst > 0 {
		m.costEstimate.Add(ctx, costEst, metric.WithAttributes(attribute.String("route", route)))
	}
}

// RecordAction records one action execution.
func (m *MetricsCollector) RecordAction(ctx context.Context, name, status string, duration time.Duration) {
	if m.actionExecutions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("action", name),
		attribute.String("status", status),
	}
	m.actionExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.actionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("action", name)))
}

// RecordBrowserSteps accumulates browser budget usage.
func (m *MetricsCollector) RecordBrowserSteps(ctx context.Context, steps int) {
	if m.browserSteps == nil || steps <= 0 {
		return
	}
	m.browserSteps.Add(ctx, int64(steps))
}

// IncrementActiveRequests marks a request as in flight.
func (m *MetricsCollector) IncrementActiveRequests(ctx context.Context) {
	if m.requestsActive == nil {
		return
	}
	m.requestsActive.Add(ctx, 1)
}

// DecrementActiveRequests marks a request as finished.
func (m *MetricsCollector) DecrementActiveRequests(ctx context.Context) {
	if m.requestsActive == nil {
		return
	}
	m.requestsActive.Add(ctx, -1)
}
