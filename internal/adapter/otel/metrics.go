package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "wirechat"

// Metrics holds all WireChat metric instruments.
type Metrics struct {
	FramesIn      metric.Int64Counter
	FramesOut     metric.Int64Counter
	FramesDropped metric.Int64Counter
	Reconnects    metric.Int64Counter
	DeltaBytes    metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.FramesIn, err = meter.Int64Counter("wirechat.frames.in",
		metric.WithDescription("Number of inbound protocol frames"))
	if err != nil {
		return nil, err
	}

	m.FramesOut, err = meter.Int64Counter("wirechat.frames.out",
		metric.WithDescription("Number of outbound protocol frames"))
	if err != nil {
		return nil, err
	}

	m.FramesDropped, err = meter.Int64Counter("wirechat.frames.dropped",
		metric.WithDescription("Number of inbound frames dropped by validation"))
	if err != nil {
		return nil, err
	}

	m.Reconnects, err = meter.Int64Counter("wirechat.reconnects",
		metric.WithDescription("Number of successful reconnections"))
	if err != nil {
		return nil, err
	}

	m.DeltaBytes, err = meter.Int64Histogram("wirechat.completion.delta_bytes",
		metric.WithDescription("Size of completion delta fragments in bytes"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
