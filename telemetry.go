package ucheckout

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sumup/ucheckout"

type instruments struct {
	tracer      trace.Tracer
	transitions metric.Int64Counter
	failures    metric.Int64Counter
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) instruments {
	meter := mp.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	transitions, err := meter.Int64Counter("ucheckout.transitions",
		metric.WithDescription("Checkout state transitions"))
	if err != nil {
		transitions, _ = fallback.Int64Counter("ucheckout.transitions")
	}
	failures, err := meter.Int64Counter("ucheckout.failures",
		metric.WithDescription("Checkout attempts that ended in the failed state"))
	if err != nil {
		failures, _ = fallback.Int64Counter("ucheckout.failures")
	}
	return instruments{
		tracer:      tp.Tracer(instrumentationName),
		transitions: transitions,
		failures:    failures,
	}
}

func (i instruments) recordTransition(ctx context.Context, from, to State) {
	attrs := metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	)
	i.transitions.Add(ctx, 1, attrs)
	if to == StateFailed {
		i.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("from", from.String())))
	}
}
