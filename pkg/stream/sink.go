package stream

import (
	"context"

	"github.com/nstogner/uistream/pkg/protocol"
)

// Sink accepts the ordered events of one stream. Send may block until the
// consumer accepts the event; the coordinator does not pull the next chunk
// until it returns.
type Sink interface {
	Send(ctx context.Context, ev protocol.Event) error
	// Done writes the terminal sentinel. No events follow it.
	Done(ctx context.Context) error
}

// Recorder is an in-memory Sink.
type Recorder struct {
	Events []protocol.Event
	Closed bool
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Send(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Events = append(r.Events, ev)
	return nil
}

func (r *Recorder) Done(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Closed = true
	return nil
}

// Types returns the wire type of each recorded event.
func (r *Recorder) Types() []string {
	types := make([]string, len(r.Events))
	for i, ev := range r.Events {
		types[i] = ev.EventType()
	}
	return types
}
