package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nstogner/uistream/pkg/domain"
)

// ErrLifecycle is returned by Assembler.Apply when an event breaks the part
// lifecycle (start, deltas, end).
var ErrLifecycle = errors.New("part lifecycle violation")

// Assembler folds a stream of events into the assistant UIMessage a client
// would render. It is not safe for concurrent use.
type Assembler struct {
	msg    UIMessage
	index  map[string]int
	open   map[string]bool
	inputs map[string]*strings.Builder

	// outputs maps a toolCallId to its open tool output part id.
	outputs map[string]string

	steps       int
	checkpoints []CheckpointRef
	errText     string
	finished    bool
}

func NewAssembler() *Assembler {
	return &Assembler{
		msg:     UIMessage{Role: domain.RoleAssistant, Parts: []Part{}},
		index:   make(map[string]int),
		open:    make(map[string]bool),
		inputs:  make(map[string]*strings.Builder),
		outputs: make(map[string]string),
	}
}

// Apply folds one event into the message.
func (a *Assembler) Apply(ev Event) error {
	switch e := ev.(type) {
	case Start:
		a.msg.ID = e.MessageID
	case StartStep:
		a.steps++
	case FinishStep:
	case TextStart:
		return a.startPart(e.ID, TextPart(""))
	case ReasoningStart:
		return a.startPart(e.ID, Part{Type: PartReasoning})
	case TextDelta:
		return a.appendText(e.ID, e.Delta)
	case ReasoningDelta:
		return a.appendText(e.ID, e.Delta)
	case TextEnd:
		return a.endPart(e.ID)
	case ReasoningEnd:
		return a.endPart(e.ID)
	case ToolInputStart:
		p := ToolPart(e.ToolCallID, e.ToolName, nil)
		p.State = StateInputStreaming
		if err := a.startPart(e.ToolCallID, p); err != nil {
			return err
		}
		a.inputs[e.ToolCallID] = &strings.Builder{}
	case ToolInputDelta:
		if !a.open[e.ToolCallID] {
			return fmt.Errorf("%w: tool input delta for %q outside its part", ErrLifecycle, e.ToolCallID)
		}
		a.inputs[e.ToolCallID].WriteString(e.InputTextDelta)
	case ToolInputAvailable:
		i, ok := a.index[e.ToolCallID]
		if !ok {
			// Inputs may arrive complete without a streamed start.
			a.index[e.ToolCallID] = len(a.msg.Parts)
			a.msg.Parts = append(a.msg.Parts, ToolPart(e.ToolCallID, e.ToolName, e.Input))
			return nil
		}
		if !a.open[e.ToolCallID] {
			return fmt.Errorf("%w: tool input for %q already available", ErrLifecycle, e.ToolCallID)
		}
		a.msg.Parts[i].Input = e.Input
		a.msg.Parts[i].State = StateInputAvailable
		delete(a.open, e.ToolCallID)
		delete(a.inputs, e.ToolCallID)
	case ToolOutputStart:
		if a.open[e.ID] {
			return fmt.Errorf("%w: duplicate start for %q", ErrLifecycle, e.ID)
		}
		a.open[e.ID] = true
		a.outputs[e.ToolCallID] = e.ID
	case ToolOutputDelta:
		if !a.open[e.ID] {
			return fmt.Errorf("%w: tool output delta for %q outside its part", ErrLifecycle, e.ID)
		}
	case ToolOutputAvailable:
		if id, ok := a.outputs[e.ToolCallID]; ok {
			delete(a.open, id)
			delete(a.outputs, e.ToolCallID)
		}
		i, ok := a.index[e.ToolCallID]
		if !ok {
			i = len(a.msg.Parts)
			a.index[e.ToolCallID] = i
			a.msg.Parts = append(a.msg.Parts, ToolPart(e.ToolCallID, "", nil))
		}
		a.msg.Parts[i] = a.msg.Parts[i].WithOutput(e.Output)
	case Checkpoint:
		a.checkpoints = append(a.checkpoints, e.Checkpoint)
	case Error:
		a.errText = e.ErrorText
	case Finish:
		a.finished = true
	}
	return nil
}

func (a *Assembler) startPart(id string, p Part) error {
	if _, ok := a.index[id]; ok {
		return fmt.Errorf("%w: duplicate start for %q", ErrLifecycle, id)
	}
	a.index[id] = len(a.msg.Parts)
	a.open[id] = true
	a.msg.Parts = append(a.msg.Parts, p)
	return nil
}

func (a *Assembler) appendText(id, delta string) error {
	if !a.open[id] {
		return fmt.Errorf("%w: delta for %q outside its part", ErrLifecycle, id)
	}
	a.msg.Parts[a.index[id]].Text += delta
	return nil
}

func (a *Assembler) endPart(id string) error {
	if !a.open[id] {
		return fmt.Errorf("%w: end for %q without an open part", ErrLifecycle, id)
	}
	delete(a.open, id)
	return nil
}

// Message returns a copy of the message assembled so far.
func (a *Assembler) Message() UIMessage {
	m := a.msg
	m.Parts = append([]Part(nil), a.msg.Parts...)
	return m
}

// PendingInput returns the argument text streamed so far for an open tool call.
func (a *Assembler) PendingInput(toolCallID string) string {
	if b, ok := a.inputs[toolCallID]; ok {
		return b.String()
	}
	return ""
}

// Steps returns the number of start-step events seen.
func (a *Assembler) Steps() int { return a.steps }

func (a *Assembler) Checkpoints() []CheckpointRef { return a.checkpoints }

// Err returns the text of the error event, if the stream reported one.
func (a *Assembler) Err() string { return a.errText }

// Finished reports whether the finish event was seen.
func (a *Assembler) Finished() bool { return a.finished }
