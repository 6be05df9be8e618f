package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrUnknownEvent is returned by Unmarshal for types it cannot decode.
var ErrUnknownEvent = errors.New("unknown event type")

// Marshal encodes an event as a single wire JSON object with its "type" set.
func Marshal(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.EventType(), err)
	}
	b, err = sjson.SetBytes(b, "type", ev.EventType())
	if err != nil {
		return nil, fmt.Errorf("set type: %w", err)
	}
	return b, nil
}

// Unmarshal decodes a wire JSON object into its concrete event. Custom
// "data-*" types decode into Data.
func Unmarshal(data []byte) (Event, error) {
	typ := gjson.GetBytes(data, "type")
	if !typ.Exists() {
		return nil, fmt.Errorf("missing event type: %w", ErrUnknownEvent)
	}

	switch t := typ.String(); t {
	case TypeStart:
		return decode[Start](data)
	case TypeStartStep:
		return StartStep{}, nil
	case TypeFinishStep:
		return FinishStep{}, nil
	case TypeTextStart:
		return decode[TextStart](data)
	case TypeTextDelta:
		return decode[TextDelta](data)
	case TypeTextEnd:
		return decode[TextEnd](data)
	case TypeReasoningStart:
		return decode[ReasoningStart](data)
	case TypeReasoningDelta:
		return decode[ReasoningDelta](data)
	case TypeReasoningEnd:
		return decode[ReasoningEnd](data)
	case TypeToolInputStart:
		return decode[ToolInputStart](data)
	case TypeToolInputDelta:
		return decode[ToolInputDelta](data)
	case TypeToolInputAvailable:
		return decode[ToolInputAvailable](data)
	case TypeToolOutputStart:
		return decode[ToolOutputStart](data)
	case TypeToolOutputDelta:
		return decode[ToolOutputDelta](data)
	case TypeToolOutputAvailable:
		return decode[ToolOutputAvailable](data)
	case TypeCheckpoint:
		return decode[Checkpoint](data)
	case TypeError:
		return decode[Error](data)
	case TypeFinish:
		return decode[Finish](data)
	default:
		if !strings.HasPrefix(t, DataPrefix) {
			return nil, fmt.Errorf("%q: %w", t, ErrUnknownEvent)
		}
		ev, err := decode[Data](data)
		if err != nil {
			return nil, err
		}
		ev.Type = t
		return ev, nil
	}
}

func decode[T Event](data []byte) (T, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode %s: %w", ev.EventType(), err)
	}
	return ev, nil
}
