// Package session carries conversations over live client connections and
// turns answer streams into ordered frames.
package session

import "time"

type FrameType string

const (
	FrameConnected     FrameType = "connected"
	FrameMessage       FrameType = "message"
	FramePing          FrameType = "ping"
	FramePong          FrameType = "pong"
	FrameResponse      FrameType = "response"
	FrameStreamStart   FrameType = "stream_start"
	FrameStreamMessage FrameType = "stream_message"
	FrameStreamEnd     FrameType = "stream_end"
	FrameError         FrameType = "error"
)

// Frame is one outbound message. Which fields are set depends on Type.
type Frame struct {
	Type        FrameType      `json:"type"`
	SessionID   string         `json:"session_id,omitempty"`
	StreamID    string         `json:"stream_id,omitempty"`
	Content     string         `json:"content,omitempty"`
	Message     string         `json:"message,omitempty"`
	ChunkIndex  int            `json:"chunk_index,omitempty"`
	TotalChunks int            `json:"total_chunks,omitempty"`
	IsFinal     *bool          `json:"is_final,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Terminal reports whether f closes a stream.
func (f Frame) Terminal() bool {
	return f.Type == FrameStreamEnd || f.Type == FrameError
}

// Inbound is a client message.
type Inbound struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content"`
	Stream  bool      `json:"stream"`
}

func boolPtr(b bool) *bool { return &b }
