package stream

import (
	"github.com/tidwall/gjson"

	"github.com/nstogner/uistream/pkg/protocol"
)

// CheckpointFunc maps a state snapshot to the event announcing it. Returning
// nil suppresses the event.
type CheckpointFunc func(StateSnapshot) protocol.Event

// UnknownCheckpointID is reported when a snapshot config has no checkpoint id.
const UnknownCheckpointID = "unknown"

// DefaultCheckpoint reads configurable.checkpoint_id from the snapshot's
// config and from its parent config. The id defaults to UnknownCheckpointID
// and the parent to null.
func DefaultCheckpoint(s StateSnapshot) protocol.Event {
	id := UnknownCheckpointID
	if v := gjson.GetBytes(s.Config, "configurable.checkpoint_id"); v.Exists() && v.String() != "" {
		id = v.String()
	}
	var parent *string
	if v := gjson.GetBytes(s.ParentConfig, "configurable.checkpoint_id"); v.Exists() && v.String() != "" {
		p := v.String()
		parent = &p
	}
	return protocol.NewCheckpoint(id, parent)
}
