// Package echo provides a model that repeats the last user message back. It
// is used when no LLM is configured.
package echo

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/model"
	"github.com/nstogner/uistream/pkg/stream"
)

// ModelID is the only model served by the provider.
const ModelID = "echo"

// maxPromptRunes bounds how much of the prompt is echoed.
const maxPromptRunes = 100

// Provider implements model.Provider without a backing LLM.
type Provider struct {
	// Delay is waited between words to make streaming visible.
	Delay time.Duration
}

var _ model.Provider = (*Provider)(nil)

func New() *Provider { return &Provider{Delay: 50 * time.Millisecond} }

func (p *Provider) Name() string { return "echo" }

func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	return []domain.Model{{ID: ModelID, Name: "Echo (no LLM configured)", Provider: "echo"}}, nil
}

func (p *Provider) Stream(ctx context.Context, req model.Request) (model.ModelStream, error) {
	return &echoStream{
		ctx:   ctx,
		msgID: "run-" + uuid.NewString(),
		text:  Response(lastUserText(req.Messages)),
		delay: p.Delay,
	}, nil
}

// Response returns the fallback reply for a prompt.
func Response(prompt string) string {
	if r := []rune(prompt); len(r) > maxPromptRunes {
		prompt = string(r[:maxPromptRunes])
	}
	return fmt.Sprintf("[Fallback Mode] Echo: %s... (LLM not configured. Set GEMINI_API_KEY to enable AI responses.)", prompt)
}

func lastUserText(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if domain.ParseRole(string(msgs[i].Role)) == domain.RoleUser {
			return msgs[i].Content.String()
		}
	}
	return ""
}

type echoStream struct {
	ctx   context.Context
	msgID string
	text  string
	delay time.Duration
}

func (s *echoStream) Chunks() iter.Seq2[stream.Chunk, error] {
	return model.Lookahead(s.msgID, func(yield func(stream.Chunk, error) bool) {
		for i, word := range strings.Fields(s.text) {
			if s.delay > 0 {
				select {
				case <-s.ctx.Done():
					yield(nil, s.ctx.Err())
					return
				case <-time.After(s.delay):
				}
			}
			if i > 0 {
				word = " " + word
			}
			if !yield(stream.TextChunk{MessageID: s.msgID, Text: word}, nil) {
				return
			}
		}
	})
}

func (s *echoStream) Close() error { return nil }
