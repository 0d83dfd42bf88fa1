package router

import (
	"strings"

	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/model"
)

var (
	orderKeywords      = []string{"订单", "下单", "购买", "付款", "支付", "order"}
	trackingLabels     = []string{"快递单号", "运单号", "物流单号", "单号"}
	logisticsKeywords  = []string{"物流", "快递", "发货", "配送", "到货", "运单", "签收", "shipping", "delivery"}
	afterSalesKeywords = []string{"退货", "退款", "换货", "退换", "质量", "问题", "维修", "保修", "售后", "投诉", "refund", "return"}
	productKeywords    = []string{"手机", "电脑", "笔记本", "平板", "耳机", "产品", "商品", "价格", "配置", "参数", "推荐", "price"}
	greetingKeywords   = []string{"你好", "您好", "hello", "hi", "再见", "拜拜", "谢谢", "感谢", "thanks"}
)

var productTypes = []string{"手机", "笔记本", "电脑", "平板", "耳机"}

// ClassifyRules is the deterministic keyword classifier. It is a pure
// function of text: the first matching category in priority order wins.
func ClassifyRules(text string) model.RouteDecision {
	d := model.RouteDecision{
		Intent:          model.IntentUnknown,
		ExtractedFields: map[string]string{},
		RoutingMethod:   model.RoutingRule,
		Success:         true,
	}
	norm := common.NormalizeQuery(text)

	switch {
	case common.ContainsAny(norm, orderKeywords):
		d.Intent = model.IntentOrder
		setField(d.ExtractedFields, model.FieldOrderID, common.ExtractOrderID(text))
		d.Reasoning = "order keyword"

	case hasTrackingNumber(text):
		d.Intent = model.IntentLogistics
		setField(d.ExtractedFields, model.FieldTrackingNumber, common.ExtractTrackingNumber(text))
		d.Reasoning = "tracking number"

	case common.ContainsAny(norm, logisticsKeywords):
		d.Intent = model.IntentLogistics
		d.Reasoning = "logistics keyword"

	case common.ContainsAny(norm, afterSalesKeywords):
		d.Intent = model.IntentAfterSales
		setField(d.ExtractedFields, model.FieldOrderID, common.ExtractOrderID(text))
		d.Reasoning = "after-sales keyword"

	case common.ContainsAny(norm, productKeywords):
		d.Intent = model.IntentPresales
		for _, p := range productTypes {
			if strings.Contains(norm, p) {
				setField(d.ExtractedFields, model.FieldProductType, p)
				break
			}
		}
		d.Reasoning = "product keyword"

	case common.ContainsAny(norm, greetingKeywords):
		d.Intent = model.IntentGreeting
		d.Reasoning = "greeting keyword"
	}
	return d
}

func hasTrackingNumber(text string) bool {
	return common.ExtractTrackingNumber(text) != "" || common.ContainsAny(text, trackingLabels)
}

func setField(fields map[string]string, name, value string) {
	if value != "" {
		fields[name] = value
	}
}
