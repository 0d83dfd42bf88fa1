// Package stream models incremental answer delivery as an explicit sequence of
// events so that a finished stream and a failed stream are told apart by kind.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// Kind discriminates Event.
type Kind int

const (
	KindChunk Kind = iota
	KindEnd
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "chunk"
	case KindEnd:
		return "end"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one step of a stream: Chunk(text) | End | Error(err).
type Event struct {
	Kind Kind
	Text string
	Err  error
}

func Chunk(text string) Event { return Event{Kind: KindChunk, Text: text} }
func End() Event              { return Event{Kind: KindEnd} }
func Fail(err error) Event    { return Event{Kind: KindError, Err: err} }

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool { return e.Kind != KindChunk }

// EmitFunc hands one chunk to the consumer. It returns false once the consumer
// has gone away, after which the producer should stop.
type EmitFunc func(text string) bool

// ProduceFunc generates chunks by calling emit. A nil return ends the stream
// normally, anything else ends it with an error event.
type ProduceFunc func(ctx context.Context, emit EmitFunc) error

// ErrProducerPanic is reported when a producer panics.
var ErrProducerPanic = errors.New("stream producer panic")

// Reader is a lazy, finite, non-restartable sequence of events.
type Reader struct {
	ch     <-chan Event
	ctx    context.Context
	cancel context.CancelFunc
	last   *Event
}

// Produce runs fn on its own goroutine and returns a Reader over its output.
// Chunks are delivered unbuffered and in the order fn emits them.
func Produce(parent context.Context, fn ProduceFunc) *Reader {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan Event)

	go func() {
		defer close(ch)

		emit := func(text string) bool {
			if text == "" {
				return ctx.Err() == nil
			}
			select {
			case ch <- Chunk(text):
				return true
			case <-ctx.Done():
				return false
			}
		}

		final := End()
		if err := run(ctx, fn, emit); err != nil {
			final = Fail(err)
		}
		select {
		case ch <- final:
		case <-ctx.Done():
		}
	}()

	return &Reader{ch: ch, ctx: ctx, cancel: cancel}
}

func run(ctx context.Context, fn ProduceFunc, emit EmitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "stream").Msgf("panic recovered: %v", r)
			err = fmt.Errorf("%w: %v", ErrProducerPanic, r)
		}
	}()
	return fn(ctx, emit)
}

// Next blocks for the next event. Once a terminal event has been returned,
// every further call returns the same terminal event.
func (r *Reader) Next(ctx context.Context) Event {
	if r.last != nil {
		return *r.last
	}

	select {
	case ev, ok := <-r.ch:
		if !ok {
			ev = End()
			if err := r.ctx.Err(); err != nil {
				ev = Fail(err)
			}
		}
		if ev.Terminal() {
			r.last = &ev
			r.cancel()
		}
		return ev
	case <-ctx.Done():
		ev := Fail(ctx.Err())
		r.last = &ev
		r.cancel()
		return ev
	}
}

// Close stops the producer. It is safe to call more than once.
func (r *Reader) Close() {
	r.cancel()
}

// FromChunks streams the given chunks in order.
func FromChunks(ctx context.Context, chunks ...string) *Reader {
	return Produce(ctx, func(ctx context.Context, emit EmitFunc) error {
		for _, c := range chunks {
			if !emit(c) {
				return ctx.Err()
			}
		}
		return nil
	})
}

// FromText streams text one rune at a time.
func FromText(ctx context.Context, text string) *Reader {
	return Produce(ctx, func(ctx context.Context, emit EmitFunc) error {
		return EmitRunes(ctx, emit, text)
	})
}

// EmitRunes emits text rune by rune through emit.
func EmitRunes(ctx context.Context, emit EmitFunc, text string) error {
	for _, r := range text {
		if !emit(string(r)) {
			return ctx.Err()
		}
	}
	return nil
}

// Failed returns a Reader that ends with err without emitting anything.
func Failed(ctx context.Context, err error) *Reader {
	return Produce(ctx, func(context.Context, EmitFunc) error { return err })
}

// Collect drains r and returns the concatenated text. On a failed stream it
// returns the text received so far together with the error.
func Collect(ctx context.Context, r *Reader) (string, error) {
	defer r.Close()
	var sb strings.Builder
	for {
		ev := r.Next(ctx)
		switch ev.Kind {
		case KindChunk:
			sb.WriteString(ev.Text)
		case KindEnd:
			return sb.String(), nil
		default:
			return sb.String(), ev.Err
		}
	}
}
