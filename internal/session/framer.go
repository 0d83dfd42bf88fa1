package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Chative-cs-agent/server/internal/agent/stream"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

const (
	msgNoContent   = "抱歉，暂时无法生成回答，请稍后再试。"
	msgStreamError = "抱歉，生成流式回答时出现错误，请稍后再试。"
)

// SendFunc delivers one frame to the client.
type SendFunc func(Frame) error

// StreamResult summarises a framed stream.
type StreamResult struct {
	StreamID string
	Content  string
	Chunks   int
	// Failed is set when the stream closed with an error frame.
	Failed bool
}

// Framer wraps an answer stream into stream_start, numbered stream_message
// frames and exactly one terminal frame.
type Framer struct {
	newID func() string
	now   func() time.Time
}

func NewFramer() *Framer {
	return &Framer{newID: uuid.NewString, now: time.Now}
}

// Run drains r into send. It returns an error only when send fails, in which
// case no terminal frame is sent and the producer is stopped.
func (f *Framer) Run(ctx context.Context, r *stream.Reader, send SendFunc) (StreamResult, error) {
	defer r.Close()

	res := StreamResult{StreamID: f.newID()}
	if err := send(Frame{Type: FrameStreamStart, StreamID: res.StreamID, Timestamp: f.now()}); err != nil {
		return res, err
	}

	var sb strings.Builder
	for {
		ev := r.Next(ctx)
		switch ev.Kind {
		case stream.KindChunk:
			res.Chunks++
			sb.WriteString(ev.Text)
			err := send(Frame{
				Type:       FrameStreamMessage,
				StreamID:   res.StreamID,
				Content:    ev.Text,
				ChunkIndex: res.Chunks,
				IsFinal:    boolPtr(false),
				Timestamp:  f.now(),
			})
			if err != nil {
				return res, err
			}

		case stream.KindEnd:
			res.Content = sb.String()
			if res.Chunks == 0 {
				logx.Warn().Str("stream_id", res.StreamID).Msg("stream produced no content")
				res.Failed = true
				return res, send(f.errorFrame(res.StreamID, msgNoContent))
			}
			return res, send(Frame{
				Type:        FrameStreamEnd,
				StreamID:    res.StreamID,
				Content:     res.Content,
				ChunkIndex:  res.Chunks,
				TotalChunks: res.Chunks,
				IsFinal:     boolPtr(true),
				Timestamp:   f.now(),
			})

		default:
			res.Content = sb.String()
			res.Failed = true
			if ctx.Err() != nil || errors.Is(ev.Err, context.Canceled) {
				return res, ev.Err
			}
			logx.Error().Err(ev.Err).Str("stream_id", res.StreamID).Int("chunks", res.Chunks).Msg("stream failed")
			return res, send(f.errorFrame(res.StreamID, msgStreamError))
		}
	}
}

func (f *Framer) errorFrame(streamID, message string) Frame {
	return Frame{Type: FrameError, StreamID: streamID, Message: message, Timestamp: f.now()}
}
