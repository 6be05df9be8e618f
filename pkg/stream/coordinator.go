package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/nstogner/uistream/pkg/protocol"
)

// Coordinator turns chunk streams into UI message streams. It holds only
// configuration and may serve concurrent streams; each call to Stream gets
// its own state.
type Coordinator struct {
	checkpoint CheckpointFunc
	newID      func(prefix string) string
	chunkSize  int
	logger     *slog.Logger
	meters     metric.MeterProvider
	ins        *instruments
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCheckpointFunc replaces DefaultCheckpoint.
func WithCheckpointFunc(f CheckpointFunc) Option {
	return func(c *Coordinator) { c.checkpoint = f }
}

// WithIDGenerator replaces NewID for message, part and tool call ids.
func WithIDGenerator(f func(prefix string) string) Option {
	return func(c *Coordinator) { c.newID = f }
}

// WithToolOutputChunkSize splits tool output into deltas of at most n runes.
func WithToolOutputChunkSize(n int) Option {
	return func(c *Coordinator) { c.chunkSize = n }
}

// WithLogger sets the logger for skipped chunks and stream outcomes.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMeterProvider sets the provider for stream metrics. Defaults to the
// global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Coordinator) { c.meters = mp }
}

// New creates a Coordinator.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		checkpoint: DefaultCheckpoint,
		newID:      NewID,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.meters == nil {
		c.meters = otel.GetMeterProvider()
	}
	ins, err := newInstruments(c.meters)
	if err != nil {
		return nil, fmt.Errorf("creating instruments: %w", err)
	}
	c.ins = ins
	return c, nil
}

// NewID returns a random id with the given prefix, e.g. "msg_3f2a...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// Stream pulls chunks one at a time and writes the resulting events to sink
// in order, waiting for each Send before pulling again.
//
// The stream opens with a start event and, when chunks run out, closes the
// open part and step, then writes finish and the terminal sentinel. An
// upstream error is reported to the client as an error event followed by the
// sentinel, and Stream returns nil. Malformed chunks are logged, counted and
// skipped. If ctx is canceled or the sink fails, Stream stops pulling,
// writes nothing further and returns the error.
func (c *Coordinator) Stream(ctx context.Context, chunks iter.Seq2[Chunk, error], sink Sink) error {
	r := &run{
		c:     c,
		sink:  sink,
		model: newModelConverter(c.newID),
		tool:  &toolConverter{newID: c.newID, chunkSize: c.chunkSize},
	}
	err := r.run(ctx, chunks)

	outcome := outcomeCompleted
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = outcomeCanceled
	case err != nil, r.failed:
		outcome = outcomeFailed
	}
	c.ins.recordStream(ctx, outcome)
	c.logger.Debug("Stream finished", "messageId", r.messageID, "phase", r.phase, "outcome", outcome, "steps", r.steps, "error", err)
	return err
}

type phase string

const (
	phaseInit      phase = "init"
	phaseStreaming phase = "streaming"
	phaseDraining  phase = "draining"
	phaseDone      phase = "done"
)

// run is the state of a single stream.
type run struct {
	c     *Coordinator
	sink  Sink
	model *modelConverter
	tool  *toolConverter

	phase     phase
	messageID string
	failed    bool

	part *partState

	stepOpen    bool
	stepMsgID   string
	toolsInStep bool
	steps       int
}

func (r *run) run(ctx context.Context, chunks iter.Seq2[Chunk, error]) error {
	r.phase = phaseInit
	r.messageID = r.c.newID("msg")
	if err := r.emit(ctx, protocol.Start{MessageID: r.messageID}); err != nil {
		return err
	}

	r.phase = phaseStreaming
	for ch, err := range chunks {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err == nil {
			err = r.handle(ctx, ch)
		} else if !errors.Is(err, ErrMalformedChunk) {
			return r.fail(ctx, err)
		}
		if errors.Is(err, ErrMalformedChunk) {
			r.c.logger.Warn("Skipping malformed chunk", "messageId", r.messageID, "error", err)
			r.c.ins.recordMalformed(ctx, chunkKind(ch))
			continue
		}
		if err != nil {
			return err
		}
	}
	// Producers may end early when ctx is canceled.
	if err := ctx.Err(); err != nil {
		return err
	}

	r.phase = phaseDraining
	if err := r.closePart(ctx); err != nil {
		return err
	}
	if err := r.finishStep(ctx); err != nil {
		return err
	}
	if err := r.emit(ctx, protocol.Finish{}); err != nil {
		return err
	}
	return r.done(ctx)
}

func (r *run) handle(ctx context.Context, ch Chunk) error {
	switch ch := ch.(type) {
	case StateSnapshot:
		ev := r.c.checkpoint(ch)
		if ev == nil {
			return nil
		}
		return r.emit(ctx, ev)

	case TextChunk:
		return r.handleText(ctx, kindText, ch.MessageID, ch.Text, ch.Last)

	case ReasoningChunk:
		return r.handleText(ctx, kindReasoning, ch.MessageID, ch.Text, ch.Last)

	case ToolCallChunk:
		id, err := r.model.toolCallID(ch)
		if err != nil {
			return err
		}
		if err := r.enterStep(ctx, ch.MessageID); err != nil {
			return err
		}
		if err := r.ensurePart(ctx, kindToolInput, id); err != nil {
			return err
		}
		if ch.ArgsFragment != "" {
			if err := r.emit(ctx, r.model.delta(r.part, ch.ArgsFragment)); err != nil {
				return err
			}
		}
		if ch.Last {
			return r.closePart(ctx)
		}
		return nil

	case ToolResultMessage:
		if ch.ToolCallID == "" {
			return fmt.Errorf("%w: tool result without tool call id", ErrMalformedChunk)
		}
		return r.handleToolResult(ctx, ch)

	default:
		return fmt.Errorf("%w: unsupported chunk %T", ErrMalformedChunk, ch)
	}
}

func (r *run) handleText(ctx context.Context, kind partKind, msgID, text string, last bool) error {
	if text != "" {
		if err := r.enterStep(ctx, msgID); err != nil {
			return err
		}
		if err := r.ensurePart(ctx, kind, ""); err != nil {
			return err
		}
		if err := r.emit(ctx, r.model.delta(r.part, text)); err != nil {
			return err
		}
	}
	if last {
		return r.closePart(ctx)
	}
	return nil
}

func (r *run) handleToolResult(ctx context.Context, res ToolResultMessage) error {
	if err := r.closePart(ctx); err != nil {
		return err
	}
	if !r.stepOpen {
		if err := r.startStep(ctx, ""); err != nil {
			return err
		}
	}
	r.toolsInStep = true

	p := &partState{kind: kindToolOutput, toolCallID: res.ToolCallID, toolName: res.Name}
	r.part = p
	if err := r.emit(ctx, r.tool.start(p)); err != nil {
		return err
	}
	for _, ev := range r.tool.deltas(p, res.Content) {
		if err := r.emit(ctx, ev); err != nil {
			return err
		}
	}
	return r.closePart(ctx)
}

// ensurePart makes the given part the open one, ending any other first.
func (r *run) ensurePart(ctx context.Context, kind partKind, toolCallID string) error {
	if r.part.is(kind, toolCallID) {
		return nil
	}
	if err := r.closePart(ctx); err != nil {
		return err
	}
	p := &partState{kind: kind, toolCallID: toolCallID}
	r.part = p
	return r.emit(ctx, r.model.start(p))
}

func (r *run) closePart(ctx context.Context) error {
	if r.part == nil {
		return nil
	}
	p := r.part
	r.part = nil
	if p.kind == kindToolOutput {
		return r.emit(ctx, r.tool.end(p))
	}
	return r.emit(ctx, r.model.end(p))
}

// enterStep starts a new step when a model chunk belongs to a different
// model message than the current step, or follows tool results without a
// message id.
func (r *run) enterStep(ctx context.Context, msgID string) error {
	if r.stepOpen {
		if msgID == "" && !r.toolsInStep {
			return nil
		}
		if msgID != "" && msgID == r.stepMsgID {
			return nil
		}
	}
	if err := r.closePart(ctx); err != nil {
		return err
	}
	if err := r.finishStep(ctx); err != nil {
		return err
	}
	return r.startStep(ctx, msgID)
}

func (r *run) startStep(ctx context.Context, msgID string) error {
	r.stepOpen = true
	r.stepMsgID = msgID
	r.toolsInStep = false
	r.steps++
	return r.emit(ctx, protocol.StartStep{})
}

func (r *run) finishStep(ctx context.Context) error {
	if !r.stepOpen {
		return nil
	}
	r.stepOpen = false
	return r.emit(ctx, protocol.FinishStep{})
}

// fail reports an upstream error to the client and ends the stream.
func (r *run) fail(ctx context.Context, cause error) error {
	r.failed = true
	r.c.logger.Warn("Upstream failed", "messageId", r.messageID, "error", cause)
	if err := r.closePart(ctx); err != nil {
		return err
	}
	if err := r.emit(ctx, protocol.Error{ErrorText: cause.Error()}); err != nil {
		return err
	}
	return r.done(ctx)
}

func (r *run) done(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.sink.Done(ctx); err != nil {
		return fmt.Errorf("writing terminal sentinel: %w", err)
	}
	r.phase = phaseDone
	return nil
}

func (r *run) emit(ctx context.Context, ev protocol.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.sink.Send(ctx, ev); err != nil {
		return fmt.Errorf("sending %s: %w", ev.EventType(), err)
	}
	r.c.ins.recordEvent(ctx, ev.EventType())
	return nil
}

func chunkKind(ch Chunk) string {
	switch ch.(type) {
	case nil:
		return "ingress"
	case TextChunk:
		return "text"
	case ReasoningChunk:
		return "reasoning"
	case ToolCallChunk:
		return "tool-call"
	case ToolResultMessage:
		return "tool-result"
	case StateSnapshot:
		return "state-snapshot"
	}
	return "unknown"
}
