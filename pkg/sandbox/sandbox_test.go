package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultText(t *testing.T) {
	tests := []struct {
		name string
		in   Result
		want string
	}{
		{"combined", Result{Output: "out", Stdout: "ignored"}, "out"},
		{"split", Result{Stdout: "a", Stderr: "b"}, "a\nb"},
		{"stderr only", Result{Stderr: "boom"}, "boom"},
		{"empty", Result{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Text())
		})
	}
}
