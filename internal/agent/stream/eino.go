package stream

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/schema"
)

// ErrRecv wraps a failure reported by the underlying message stream, as
// opposed to the consumer going away.
var ErrRecv = errors.New("message stream receive")

// RelayMessages forwards each message's Content from sr to emit, verbatim and
// in order, and closes sr when done. observe, when set, sees every non-nil
// message before it is emitted.
func RelayMessages(ctx context.Context, sr *schema.StreamReader[*schema.Message], emit EmitFunc, observe func(*schema.Message)) error {
	defer sr.Close()
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Join(ErrRecv, err)
		}
		if msg == nil {
			continue
		}
		if observe != nil {
			observe(msg)
		}
		if !emit(msg.Content) {
			return ctx.Err()
		}
	}
}
