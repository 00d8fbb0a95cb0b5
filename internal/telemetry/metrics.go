package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/suPer8Hu/market-research"

// Metrics records job lifecycle counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	submitted metric.Int64Counter
	finished  metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics registers the job instruments on the global meter provider.
// Until Setup is called the global provider is a no-op.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	submitted, err := meter.Int64Counter("research_jobs_submitted",
		metric.WithDescription("Research jobs accepted for execution"))
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter("research_jobs_finished",
		metric.WithDescription("Research jobs that reached a terminal state"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("research_job_duration",
		metric.WithDescription("Wall time of the external research call"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{submitted: submitted, finished: finished, duration: duration}, nil
}

func (m *Metrics) JobSubmitted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) JobFinished(ctx context.Context, mode, status string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, took.Seconds(), attrs)
}
