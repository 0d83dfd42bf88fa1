// Package handlers holds the specialised answerers dispatched by the coordinator.
// Every handler produces a complete AgentResponse and an equivalent stream;
// upstream failures are turned into apologies at this boundary.
package handlers

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
)

// Agent names used for statistics and response context.
const (
	AgentOrder      = "order_agent"
	AgentAfterSales = "after_sales_agent"
	AgentProduct    = "product_agent"
	AgentCanned     = "canned"
)

// Request is what a handler needs to answer one message.
type Request struct {
	Query     string
	SessionID string
	Intent    model.Intent
	Fields    map[string]string
	// Order is resolved ahead of time for after-sales questions, if possible.
	Order   *model.Order
	History []*schema.Message
	// Trace is filled in by StreamAnswer; it may be nil.
	Trace *Trace
}

// Field returns an extracted field or "".
func (r Request) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Handler answers one category of request.
type Handler interface {
	Name() string
	Answer(ctx context.Context, req Request) *model.AgentResponse
	StreamAnswer(ctx context.Context, req Request) *stream.Reader
}

func failed(intent model.Intent, agent, content string) *model.AgentResponse {
	resp := &model.AgentResponse{Success: false, Content: content, Intent: intent}
	return resp.WithContext("agent", agent)
}

func succeeded(intent model.Intent, agent, content string) *model.AgentResponse {
	resp := &model.AgentResponse{Success: true, Content: content, Intent: intent}
	return resp.WithContext("agent", agent)
}

// forward copies chunks from r to emit and reports how many were sent.
func forward(ctx context.Context, r *stream.Reader, emit stream.EmitFunc) (int, error) {
	defer r.Close()
	n := 0
	for {
		ev := r.Next(ctx)
		switch ev.Kind {
		case stream.KindChunk:
			if !emit(ev.Text) {
				return n, ctx.Err()
			}
			n++
		case stream.KindEnd:
			return n, nil
		default:
			return n, ev.Err
		}
	}
}
