package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a
// Prometheus exporter. It returns the HTTP handler for the /metrics
// endpoint and a shutdown function for graceful cleanup on exit.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// SchedulerMetrics bundles the instruments the controller records as it
// consumes the scheduler's outbound event stream.
type SchedulerMetrics struct {
	Allocations metric.Int64Counter
	Completions metric.Int64Counter
	Failures    metric.Int64Counter
	Reroutes    metric.Int64Counter
	Alerts      metric.Int64Counter
}

// NewSchedulerMetrics creates the scheduler counters on the global meter.
func NewSchedulerMetrics() (*SchedulerMetrics, error) {
	meter := otel.Meter("forgeplane-scheduler")

	m := &SchedulerMetrics{}
	var err error
	if m.Allocations, err = meter.Int64Counter("forgeplane.jobs.allocated",
		metric.WithDescription("Jobs matched to a fabrication unit")); err != nil {
		return nil, err
	}
	if m.Completions, err = meter.Int64Counter("forgeplane.jobs.completed",
		metric.WithDescription("Jobs finished fabrication")); err != nil {
		return nil, err
	}
	if m.Failures, err = meter.Int64Counter("forgeplane.jobs.failed",
		metric.WithDescription("Jobs that reached terminal error")); err != nil {
		return nil, err
	}
	if m.Reroutes, err = meter.Int64Counter("forgeplane.jobs.rerouted",
		metric.WithDescription("Jobs re-queued after a unit failure")); err != nil {
		return nil, err
	}
	if m.Alerts, err = meter.Int64Counter("forgeplane.alerts",
		metric.WithDescription("Staff alerts emitted")); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterQueueDepthGauge registers an observable gauge that reports the
// queued job count per capability class when scraped.
func RegisterQueueDepthGauge(depth func() map[string]int) error {
	meter := otel.Meter("forgeplane-scheduler")
	_, err := meter.Int64ObservableGauge("forgeplane.queue.depth",
		metric.WithDescription("Queued jobs per capability class"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			for capability, n := range depth() {
				obs.Observe(int64(n), metric.WithAttributes(attribute.String("capability", capability)))
			}
			return nil
		}),
	)
	return err
}
