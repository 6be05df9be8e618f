// Package store defines persistence for threads, their message history and
// checkpoints.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tidwall/sjson"

	"github.com/nstogner/uistream/pkg/domain"
)

// ErrNotFound is returned when a thread or checkpoint does not exist.
var ErrNotFound = errors.New("not found")

// ThreadStore manages thread configurations.
type ThreadStore interface {
	// CreateThread persists a new thread. The ID field must be set by the caller.
	CreateThread(ctx context.Context, t *domain.Thread) error

	// GetThread retrieves a thread by ID. Returns ErrNotFound if it does not exist.
	GetThread(ctx context.Context, id string) (*domain.Thread, error)

	// ListThreads returns all threads, most recently updated first.
	ListThreads(ctx context.Context) ([]domain.Thread, error)

	// UpdateThread persists changes to an existing thread.
	UpdateThread(ctx context.Context, t *domain.Thread) error

	// DeleteThread removes a thread with its messages and checkpoints.
	DeleteThread(ctx context.Context, id string) error

	// ListThreadIDs returns the IDs of all threads.
	ListThreadIDs(ctx context.Context) ([]string, error)
}

// MessageStore manages the append-only message history of threads.
type MessageStore interface {
	// AppendMessage adds a message to the end of its thread. ID and
	// CreatedAt are set when empty.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// GetMessages returns a thread's messages in order. If limit > 0, only
	// the last limit messages are returned.
	GetMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)

	// Subscribe returns a channel that emits thread IDs whenever a message
	// is appended to any thread.
	Subscribe() <-chan string
}

// CheckpointStore manages state snapshots of threads.
type CheckpointStore interface {
	// SaveCheckpoint records a snapshot of the thread's first messageCount
	// messages. Its parent is the thread's previous checkpoint.
	SaveCheckpoint(ctx context.Context, threadID string, messageCount int) (*domain.Checkpoint, error)

	// ListCheckpoints returns a thread's checkpoints, oldest first.
	ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error)

	// GetCheckpoint retrieves a checkpoint by ID.
	GetCheckpoint(ctx context.Context, threadID, id string) (*domain.Checkpoint, error)
}

// CheckpointConfig builds the opaque configuration identifying a checkpoint:
// {"configurable":{"thread_id":...,"checkpoint_id":...}}.
func CheckpointConfig(threadID, checkpointID string) json.RawMessage {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "configurable.thread_id", threadID)
	b, _ = sjson.SetBytes(b, "configurable.checkpoint_ns", "")
	b, _ = sjson.SetBytes(b, "configurable.checkpoint_id", checkpointID)
	return b
}
