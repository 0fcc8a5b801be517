package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "furnace-optimizer/backend/internal/services"

// clientMetrics records one counter increment and one latency sample per
// outbound call, labelled with the outcome kind.
type clientMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newClientMetrics(mp metric.MeterProvider) *clientMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &clientMetrics{}
	// Instrument errors leave the field nil; record skips nil instruments.
	var err error
	if m.requests, err = meter.Int64Counter(
		"optimizer.client.requests",
		metric.WithDescription("Outbound prediction requests by outcome"),
	); err != nil {
		m.requests = nil
	}
	if m.duration, err = meter.Float64Histogram(
		"optimizer.client.duration",
		metric.WithDescription("Outbound prediction request latency"),
		metric.WithUnit("s"),
	); err != nil {
		m.duration = nil
	}
	return m
}

func (m *clientMetrics) record(ctx context.Context, endpoint string, started time.Time, err error) {
	outcome := ErrorKind(err)
	if outcome == "" {
		outcome = "ok"
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(started).Seconds(), attrs)
	}
}
