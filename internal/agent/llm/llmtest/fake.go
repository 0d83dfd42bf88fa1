// Package llmtest provides scripted chat models for tests.
package llmtest

import (
	"context"
	"sync"
	"sync/atomic"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/stream"
)

// ChatModel is an eino BaseChatModel that replays a fixed answer.
type ChatModel struct {
	Reply  string
	Chunks []string
	Err    error
	Usage  *schema.TokenUsage

	calls atomic.Int32
	mu    sync.Mutex
	last  []*schema.Message
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.record(input)
	if m.Err != nil {
		return nil, m.Err
	}
	msg := schema.AssistantMessage(m.Reply, nil)
	if m.Usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{Usage: m.Usage}
	}
	return msg, nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := m.Chunks
	if chunks == nil {
		chunks = []string{m.Reply}
	}
	msgs := make([]*schema.Message, 0, len(chunks))
	for _, c := range chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (m *ChatModel) record(input []*schema.Message) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = input
	m.mu.Unlock()
}

// Calls returns how many times the model was invoked.
func (m *ChatModel) Calls() int { return int(m.calls.Load()) }

// LastInput returns the messages of the most recent call.
func (m *ChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Completer is a scripted llm.Completer.
type Completer struct {
	Reply     string
	Chunks    []string
	Err       error
	StreamErr error

	calls atomic.Int32
	mu    sync.Mutex
	last  []*schema.Message
}

func (c *Completer) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	c.record(msgs)
	if c.Err != nil {
		return "", c.Err
	}
	return c.Reply, nil
}

func (c *Completer) Stream(ctx context.Context, msgs []*schema.Message) *stream.Reader {
	c.record(msgs)
	if c.Err != nil {
		return stream.Failed(ctx, c.Err)
	}
	chunks := c.Chunks
	if chunks == nil {
		chunks = []string{c.Reply}
	}
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		for _, ch := range chunks {
			if !emit(ch) {
				return ctx.Err()
			}
		}
		return c.StreamErr
	})
}

func (c *Completer) record(msgs []*schema.Message) {
	c.calls.Add(1)
	c.mu.Lock()
	c.last = msgs
	c.mu.Unlock()
}

func (c *Completer) Calls() int { return int(c.calls.Load()) }

// LastInput returns the messages of the most recent call.
func (c *Completer) LastInput() []*schema.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
