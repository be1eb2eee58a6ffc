package ai

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

// Responder produces a streamed assistant reply for one user query.
type Responder interface {
	Respond(ctx context.Context, preamble string, history []*schema.Message, query string) (*schema.StreamReader[*schema.Message], error)
}

// EchoResponder answers with a deterministic reply split into small chunks.
// It lets the backend run without model credentials.
type EchoResponder struct {
	Delay     time.Duration
	ChunkSize int
}

// NewEchoResponder returns an EchoResponder pausing delay between chunks.
func NewEchoResponder(delay time.Duration) *EchoResponder {
	return &EchoResponder{Delay: delay, ChunkSize: 4}
}

// Reply is the full text EchoResponder streams for query.
func (e *EchoResponder) Reply(query string) string {
	return "收到：" + strings.TrimSpace(query)
}

func (e *EchoResponder) Respond(ctx context.Context, _ string, _ []*schema.Message, query string) (*schema.StreamReader[*schema.Message], error) {
	parts := splitRunes(e.Reply(query), e.ChunkSize)
	sr, sw := schema.Pipe[*schema.Message](len(parts))

	go func() {
		defer sw.Close()
		for i, part := range parts {
			if i > 0 && e.Delay > 0 {
				select {
				case <-ctx.Done():
					sw.Send(nil, ctx.Err())
					return
				case <-time.After(e.Delay):
				}
			}
			if closed := sw.Send(schema.AssistantMessage(part, nil), nil); closed {
				return
			}
		}
	}()

	return sr, nil
}

func splitRunes(text string, size int) []string {
	if size <= 0 {
		size = 1
	}
	runes := []rune(text)
	parts := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
