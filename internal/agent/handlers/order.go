package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

const (
	msgOrderMissingID   = "请提供您的订单号，我来为您查询订单信息。"
	msgOrderInvalidID   = "订单号格式不正确，请检查后重试"
	msgOrderNotFound    = "未找到相关订单信息，请检查订单号是否正确"
	msgOrderUnavailable = "抱歉，订单查询服务暂时不可用，请稍后重试。"
	msgOrderProgress    = "我正在为您查询订单信息...\n\n"

	msgLogisticsUnavailable = "抱歉，物流查询服务暂时不可用，请稍后重试。"
	msgLogisticsNotFound    = "未找到该快递单号的物流信息，请确认单号是否正确"
	msgLogisticsMissing     = "请提供快递单号或订单号，我来为您查询物流信息。"
)

// OrderInfo is the privacy-safe view of an order placed in StructuredInfo.
type OrderInfo struct {
	OrderID         string  `json:"order_id"`
	ProductName     string  `json:"product_name"`
	Status          string  `json:"status"`
	PaymentStatus   string  `json:"payment_status"`
	TotalAmount     float64 `json:"total_amount"`
	ShippingAddress string  `json:"shipping_address"`
	CustomerPhone   string  `json:"customer_phone_masked,omitempty"`
	TrackingNumber  string  `json:"tracking_number,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

// NewOrderInfo copies o with the contact number masked.
func NewOrderInfo(o *model.Order) OrderInfo {
	info := OrderInfo{
		OrderID:         o.OrderID,
		ProductName:     o.ProductName,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		TrackingNumber:  o.TrackingNumber,
	}
	if o.CustomerPhone != "" {
		info.CustomerPhone = common.MaskPhone(o.CustomerPhone)
	}
	if !o.CreatedAt.IsZero() {
		info.CreatedAt = o.CreatedAt.Format(time.DateTime)
	}
	return info
}

// FormatOrderDetails renders an order for the customer.
func FormatOrderDetails(info OrderInfo) string {
	var sb strings.Builder
	sb.WriteString("📦 订单详情：\n")
	fmt.Fprintf(&sb, "• 订单号：%s\n", orNA(info.OrderID))
	fmt.Fprintf(&sb, "• 商品名称：%s\n", orNA(info.ProductName))
	fmt.Fprintf(&sb, "• 订单状态：%s\n", orNA(info.Status))
	fmt.Fprintf(&sb, "• 下单时间：%s\n", orNA(info.CreatedAt))
	fmt.Fprintf(&sb, "• 支付状态：%s\n", orNA(info.PaymentStatus))
	fmt.Fprintf(&sb, "• 收货地址：%s\n", orNA(info.ShippingAddress))
	if info.CustomerPhone != "" {
		fmt.Fprintf(&sb, "• 联系电话：%s\n", info.CustomerPhone)
	}
	if info.TrackingNumber != "" {
		fmt.Fprintf(&sb, "• 快递单号：%s\n", info.TrackingNumber)
	}
	sb.WriteString("\n如需了解更多信息，请告诉我您的具体需求。")
	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// OrderHandler looks orders up by id and reports delivery status.
type OrderHandler struct {
	orders    model.OrderStore
	logistics model.LogisticsService
}

var _ Handler = (*OrderHandler)(nil)

// NewOrderHandler builds the handler; logistics may be nil.
func NewOrderHandler(orders model.OrderStore, logistics model.LogisticsService) *OrderHandler {
	return &OrderHandler{orders: orders, logistics: logistics}
}

func (h *OrderHandler) Name() string { return AgentOrder }

// orderLookup is the shared outcome of resolving an order for both modes.
type orderLookup struct {
	info    *OrderInfo
	message string
}

// Lookup validates orderID and loads the order. It returns ErrInvalidOrderID
// for a malformed id and ErrNotFound when no such order exists.
func (h *OrderHandler) Lookup(ctx context.Context, orderID string) (*model.Order, error) {
	if !common.ValidateOrderID(orderID) {
		return nil, errx.ErrInvalidOrderID
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errx.ErrNotFound
	}
	return order, nil
}

func (h *OrderHandler) lookup(ctx context.Context, req Request) orderLookup {
	orderID := req.Field(model.FieldOrderID)
	if orderID == "" {
		orderID = common.ExtractOrderID(req.Query)
	}
	if orderID == "" {
		return orderLookup{message: msgOrderMissingID}
	}

	order, err := h.Lookup(ctx, orderID)
	switch {
	case errors.Is(err, errx.ErrInvalidOrderID):
		return orderLookup{message: msgOrderInvalidID}
	case errors.Is(err, errx.ErrNotFound):
		return orderLookup{message: msgOrderNotFound}
	case err != nil:
		logx.Error().Err(err).Str("order_id", orderID).Str("session_id", req.SessionID).Msg("order lookup failed")
		return orderLookup{message: msgOrderUnavailable}
	}
	info := NewOrderInfo(order)
	return orderLookup{info: &info}
}

func (h *OrderHandler) Answer(ctx context.Context, req Request) *model.AgentResponse {
	res := h.lookup(ctx, req)
	if res.info == nil {
		return failed(model.IntentOrder, AgentOrder, res.message)
	}

	resp := succeeded(model.IntentOrder, AgentOrder,
		fmt.Sprintf("已查询到订单信息：%s，订单状态：%s\n\n%s", orNA(res.info.ProductName), orNA(res.info.Status), FormatOrderDetails(*res.info)))
	resp.StructuredInfo = map[string]any{"order_info": *res.info}
	return resp
}

// StreamAnswer emits a progress line and then the order details rune by rune.
func (h *OrderHandler) StreamAnswer(ctx context.Context, req Request) *stream.Reader {
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		req.Trace.SetPreamble(msgOrderProgress)
		if !emit(msgOrderProgress) {
			return ctx.Err()
		}
		res := h.lookup(ctx, req)
		if res.info == nil {
			req.Trace.Fail()
			return stream.EmitRunes(ctx, emit, res.message)
		}
		return stream.EmitRunes(ctx, emit, FormatOrderDetails(*res.info))
	})
}

// ResolveOrder fetches an order best-effort; failures and misses give nil.
func (h *OrderHandler) ResolveOrder(ctx context.Context, orderID string) *model.Order {
	order, err := h.Lookup(ctx, orderID)
	if err != nil && !errors.Is(err, errx.ErrInvalidOrderID) && !errors.Is(err, errx.ErrNotFound) {
		logx.Warn().Err(err).Str("order_id", orderID).Msg("order context unavailable")
	}
	return order
}

func (h *OrderHandler) logisticsText(ctx context.Context, tracking, orderID string) (string, bool) {
	if tracking == "" && orderID != "" {
		if order := h.ResolveOrder(ctx, orderID); order != nil {
			if order.TrackingNumber == "" {
				return fmt.Sprintf("订单 %s 当前状态：%s，暂未生成物流信息。", order.OrderID, orNA(order.Status)), true
			}
			tracking = order.TrackingNumber
		} else {
			return msgOrderNotFound, false
		}
	}
	if tracking == "" {
		return msgLogisticsMissing, false
	}
	if h.logistics == nil {
		return msgLogisticsUnavailable, false
	}

	status, err := h.logistics.Status(ctx, tracking)
	if err != nil {
		logx.Error().Err(err).Str("tracking_number", tracking).Msg("logistics lookup failed")
		return msgLogisticsUnavailable, false
	}
	if status == nil {
		return msgLogisticsNotFound, false
	}
	return FormatLogistics(status), true
}

// QueryLogistics reports delivery status by tracking number, or by the
// order's tracking number when only an order id is known.
func (h *OrderHandler) QueryLogistics(ctx context.Context, tracking, orderID string) *model.AgentResponse {
	text, ok := h.logisticsText(ctx, tracking, orderID)
	if !ok {
		return failed(model.IntentLogistics, AgentOrder, text)
	}
	return succeeded(model.IntentLogistics, AgentOrder, text)
}

// StreamLogistics is the streaming form of QueryLogistics. Misses and
// outages are marked failed on trace, which may be nil.
func (h *OrderHandler) StreamLogistics(ctx context.Context, tracking, orderID string, trace *Trace) *stream.Reader {
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		text, ok := h.logisticsText(ctx, tracking, orderID)
		if !ok {
			trace.Fail()
		}
		return stream.EmitRunes(ctx, emit, text)
	})
}

// FormatLogistics renders a delivery status.
func FormatLogistics(s *model.LogisticsStatus) string {
	var sb strings.Builder
	sb.WriteString("🚚 物流信息：\n")
	fmt.Fprintf(&sb, "• 快递单号：%s\n", orNA(s.TrackingNumber))
	fmt.Fprintf(&sb, "• 承运商：%s\n", orNA(s.Carrier))
	fmt.Fprintf(&sb, "• 当前状态：%s\n", orNA(s.Status))
	if s.Location != "" {
		fmt.Fprintf(&sb, "• 当前位置：%s\n", s.Location)
	}
	if s.Destination != "" {
		fmt.Fprintf(&sb, "• 目的地：%s\n", s.Destination)
	}
	if s.UpdatedAt != "" {
		fmt.Fprintf(&sb, "• 更新时间：%s\n", s.UpdatedAt)
	}
	return strings.TrimRight(sb.String(), "\n")
}
