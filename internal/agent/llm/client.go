package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// Completer is the text completion port used by the router and handlers.
// A nil Completer means no model is configured.
type Completer interface {
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
	Stream(ctx context.Context, msgs []*schema.Message) *stream.Reader
}

// Client runs a chat model through a compiled eino chain so that the
// prompt and model callbacks fire on every call.
type Client struct {
	name     string
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
	timeout  time.Duration
}

var _ Completer = (*Client)(nil)

// NewClient compiles a single-node chain around cm. name is used for logging
// and pricing lookups.
func NewClient(ctx context.Context, name string, cm einomodel.BaseChatModel, timeout time.Duration) (*Client, error) {
	if cm == nil {
		return nil, fmt.Errorf("chat model %q is nil", name)
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(cm)
	runnable, err := chain.Compile(ctx)
	if err != nil {
		logx.Error().Err(err).Str("model", name).Msg("Error compiling chat chain")
		return nil, fmt.Errorf("error compiling chat chain: %w", err)
	}

	return &Client{name: name, runnable: runnable, timeout: timeout}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Complete returns the full model answer for msgs.
func (c *Client) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := c.runnable.Invoke(ctx, msgs, compose.WithCallbacks(NewCallbacks()))
	if err != nil {
		logx.Error().Err(err).Str("model", c.name).Dur("elapsed", time.Since(start)).Msg("model call failed")
		return "", errx.WrapUpstream(err)
	}
	if out == nil {
		return "", nil
	}
	c.logUsage(out, time.Since(start))
	return out.Content, nil
}

// Stream returns the model answer as it is generated. Chunks are forwarded
// verbatim and in order.
func (c *Client) Stream(ctx context.Context, msgs []*schema.Message) *stream.Reader {
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()

		start := time.Now()
		sr, err := c.runnable.Stream(ctx, msgs, compose.WithCallbacks(NewCallbacks()))
		if err != nil {
			logx.Error().Err(err).Str("model", c.name).Msg("model stream failed to start")
			return errx.WrapUpstream(err)
		}
		var last *schema.Message
		err = stream.RelayMessages(ctx, sr, emit, func(msg *schema.Message) { last = msg })
		if errors.Is(err, stream.ErrRecv) {
			logx.Error().Err(err).Str("model", c.name).Msg("model stream broke")
			return errx.WrapUpstream(err)
		}
		if err != nil {
			return err
		}
		if last != nil {
			c.logUsage(last, time.Since(start))
		}
		return nil
	})
}

func (c *Client) logUsage(msg *schema.Message, elapsed time.Duration) {
	if msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return
	}
	u := model.ComputeUsage(c.name, msg.ResponseMeta.Usage)
	logx.Debug().
		Str("model", u.Model).
		Int("prompt_tokens", u.PromptTokens).
		Int("completion_tokens", u.CompletionTokens).
		Float64("cost_usd", u.CostUSD).
		Dur("elapsed", elapsed).
		Msg("model usage")
}
