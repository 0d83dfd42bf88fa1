package coordinator

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/handlers"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
)

// logisticsHandler answers delivery questions that carry a tracking number.
type logisticsHandler struct {
	orders *handlers.OrderHandler
}

func (h logisticsHandler) Name() string { return handlers.AgentOrder }

func (h logisticsHandler) Answer(ctx context.Context, req handlers.Request) *model.AgentResponse {
	return h.orders.QueryLogistics(ctx, req.Field(model.FieldTrackingNumber), req.Field(model.FieldOrderID))
}

func (h logisticsHandler) StreamAnswer(ctx context.Context, req handlers.Request) *stream.Reader {
	return h.orders.StreamLogistics(ctx, req.Field(model.FieldTrackingNumber), req.Field(model.FieldOrderID), req.Trace)
}

// Handlers are the answerers the coordinator dispatches to.
type Handlers struct {
	Orders     *handlers.OrderHandler
	AfterSales handlers.Handler
	Product    handlers.Handler
	Canned     handlers.Handler
}

// dispatchTable maps intents to handlers once at construction.
type dispatchTable struct {
	byIntent   map[model.Intent]handlers.Handler
	orders     *handlers.OrderHandler
	afterSales handlers.Handler
	fallback   handlers.Handler
}

func newDispatchTable(h Handlers) dispatchTable {
	return dispatchTable{
		byIntent: map[model.Intent]handlers.Handler{
			model.IntentOrder:          h.Orders,
			model.IntentLogistics:      logisticsHandler{orders: h.Orders},
			model.IntentAfterSales:     h.AfterSales,
			model.IntentPresales:       h.Product,
			model.IntentRecommendation: h.Product,
		},
		orders:     h.Orders,
		afterSales: h.AfterSales,
		fallback:   h.Canned,
	}
}

// plan picks the handler for a decision and assembles its request.
func (t dispatchTable) plan(ctx context.Context, text, sessionID string, d model.RouteDecision, history []*schema.Message) (handlers.Handler, handlers.Request) {
	req := handlers.Request{
		Query:     text,
		SessionID: sessionID,
		Intent:    d.Intent,
		Fields:    d.ExtractedFields,
		History:   history,
	}

	h, ok := t.byIntent[d.Intent]
	if !ok {
		h = t.fallback
	}
	// Without a tracking number a delivery question is a policy question.
	if d.Intent == model.IntentLogistics && d.Field(model.FieldTrackingNumber) == "" {
		h = t.afterSales
	}
	if h == t.afterSales {
		if orderID := d.Field(model.FieldOrderID); orderID != "" {
			req.Order = t.orders.ResolveOrder(ctx, orderID)
		}
	}
	return h, req
}
