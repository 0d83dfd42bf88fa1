package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, r *Reader) ([]string, Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var chunks []string
	for {
		ev := r.Next(ctx)
		if ev.Terminal() {
			return chunks, ev
		}
		chunks = append(chunks, ev.Text)
	}
}

func TestProduce(t *testing.T) {
	t.Run("Should deliver chunks in order and then end", func(t *testing.T) {
		r := FromChunks(context.Background(), "a", "b", "c")
		chunks, last := drain(t, r)
		assert.Equal(t, []string{"a", "b", "c"}, chunks)
		assert.Equal(t, KindEnd, last.Kind)
	})

	t.Run("Should skip empty chunks", func(t *testing.T) {
		r := FromChunks(context.Background(), "a", "", "b")
		chunks, _ := drain(t, r)
		assert.Equal(t, []string{"a", "b"}, chunks)
	})

	t.Run("Should end with an error event when the producer fails", func(t *testing.T) {
		boom := errors.New("boom")
		r := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
			emit("partial")
			return boom
		})
		chunks, last := drain(t, r)
		assert.Equal(t, []string{"partial"}, chunks)
		assert.Equal(t, KindError, last.Kind)
		assert.ErrorIs(t, last.Err, boom)
	})

	t.Run("Should turn a producer panic into an error event", func(t *testing.T) {
		r := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
			panic("bad")
		})
		_, last := drain(t, r)
		assert.Equal(t, KindError, last.Kind)
		assert.ErrorIs(t, last.Err, ErrProducerPanic)
	})

	t.Run("Should keep returning the terminal event", func(t *testing.T) {
		r := FromChunks(context.Background())
		ctx := context.Background()
		assert.Equal(t, KindEnd, r.Next(ctx).Kind)
		assert.Equal(t, KindEnd, r.Next(ctx).Kind)
	})

	t.Run("Should stop the producer when the reader is closed", func(t *testing.T) {
		stopped := make(chan struct{})
		r := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
			defer close(stopped)
			for emit("x") {
			}
			return ctx.Err()
		})
		assert.Equal(t, KindChunk, r.Next(context.Background()).Kind)
		r.Close()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("producer did not stop")
		}
	})

	t.Run("Should report cancellation of the consumer context", func(t *testing.T) {
		r := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
			<-ctx.Done()
			return ctx.Err()
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ev := r.Next(ctx)
		assert.Equal(t, KindError, ev.Kind)
		assert.ErrorIs(t, ev.Err, context.Canceled)
	})
}

func TestFromText(t *testing.T) {
	t.Run("Should emit one rune per chunk", func(t *testing.T) {
		chunks, last := drain(t, FromText(context.Background(), "你好ok"))
		assert.Equal(t, []string{"你", "好", "o", "k"}, chunks)
		assert.Equal(t, KindEnd, last.Kind)
	})
}

func TestCollect(t *testing.T) {
	t.Run("Should join all chunks", func(t *testing.T) {
		text, err := Collect(context.Background(), FromText(context.Background(), "七天无理由退货"))
		require.NoError(t, err)
		assert.Equal(t, "七天无理由退货", text)
	})

	t.Run("Should return partial text with the error", func(t *testing.T) {
		boom := errors.New("boom")
		r := Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
			emit("ab")
			return boom
		})
		text, err := Collect(context.Background(), r)
		assert.Equal(t, "ab", text)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRelayMessages(t *testing.T) {
	relay := func(sr *schema.StreamReader[*schema.Message], seen *[]string) *Reader {
		return Produce(context.Background(), func(ctx context.Context, emit EmitFunc) error {
			return RelayMessages(ctx, sr, emit, func(m *schema.Message) { *seen = append(*seen, m.Content) })
		})
	}

	t.Run("Should forward message contents verbatim", func(t *testing.T) {
		sr := schema.StreamReaderFromArray([]*schema.Message{
			schema.AssistantMessage("退货", nil),
			schema.AssistantMessage("政策", nil),
		})
		var seen []string
		chunks, last := drain(t, relay(sr, &seen))
		assert.Equal(t, []string{"退货", "政策"}, chunks)
		assert.Equal(t, chunks, seen)
		assert.Equal(t, KindEnd, last.Kind)
	})

	t.Run("Should surface stream errors", func(t *testing.T) {
		sr, sw := schema.Pipe[*schema.Message](2)
		go func() {
			defer sw.Close()
			sw.Send(schema.AssistantMessage("a", nil), nil)
			sw.Send(nil, errors.New("upstream"))
		}()
		var seen []string
		chunks, last := drain(t, relay(sr, &seen))
		assert.Equal(t, []string{"a"}, chunks)
		assert.Equal(t, KindError, last.Kind)
		assert.ErrorIs(t, last.Err, ErrRecv)
	})
}
