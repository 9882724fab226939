package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func meterName(service string) string {
	return "pgprobe/" + service
}

// Outcome labels recorded by ProbeMetrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ProbeMetrics counts connectivity probe attempts and their latency.
// Source is "live" for page requests and "monitor" for the periodic loop.
type ProbeMetrics struct {
	service string

	attempts metric.Int64Counter
	latency  metric.Float64Histogram
	up       metric.Int64Gauge
}

func NewProbeMetrics(service string) (*ProbeMetrics, error) {
	m := otel.Meter(meterName(service))

	attempts, err := m.Int64Counter(
		"probe.attempts",
		metric.WithDescription("Connectivity probe attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := m.Float64Histogram(
		"probe.duration",
		metric.WithDescription("Time to open (or fail to open) the database connection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	up, err := m.Int64Gauge(
		"probe.up",
		metric.WithDescription("1 if the last probe succeeded, 0 otherwise"),
	)
	if err != nil {
		return nil, err
	}

	return &ProbeMetrics{
		service:  service,
		attempts: attempts,
		latency:  latency,
		up:       up,
	}, nil
}

func (p *ProbeMetrics) RecordProbe(ctx context.Context, source string, ok bool, d time.Duration) {
	if p == nil {
		return
	}
	outcome := OutcomeFailure
	var up int64
	if ok {
		outcome = OutcomeSuccess
		up = 1
	}
	base := []attribute.KeyValue{
		attribute.String("service.name", p.service),
		attribute.String("probe.source", source),
	}
	attrs := append(base, attribute.String("probe.outcome", outcome))

	p.attempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.latency.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	p.up.Record(ctx, up, metric.WithAttributes(base...))
}
