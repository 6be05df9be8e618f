package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointConfig(t *testing.T) {
	got := CheckpointConfig("thread-1", "cp-1")
	assert.JSONEq(t, `{"configurable":{"thread_id":"thread-1","checkpoint_ns":"","checkpoint_id":"cp-1"}}`, string(got))
}
