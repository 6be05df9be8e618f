package stream

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nstogner/uistream/pkg/stream"

// Stream outcomes recorded on the uistream.streams counter.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCanceled  = "canceled"
)

type instruments struct {
	malformed metric.Int64Counter
	events    metric.Int64Counter
	streams   metric.Int64Counter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(meterName)
	ins := &instruments{}

	var err error
	ins.malformed, err = meter.Int64Counter(
		"uistream.chunks.malformed",
		metric.WithDescription("Producer chunks skipped because they were malformed"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		return nil, err
	}

	ins.events, err = meter.Int64Counter(
		"uistream.events.emitted",
		metric.WithDescription("UI message stream events accepted by sinks"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	ins.streams, err = meter.Int64Counter(
		"uistream.streams",
		metric.WithDescription("Streams run to a terminal state, by outcome"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, err
	}
	return ins, nil
}

func (ins *instruments) recordMalformed(ctx context.Context, reason string) {
	ins.malformed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (ins *instruments) recordEvent(ctx context.Context, eventType string) {
	ins.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (ins *instruments) recordStream(ctx context.Context, outcome string) {
	ins.streams.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
