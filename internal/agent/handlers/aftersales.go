package handlers

import (
	"fmt"
	"strings"

	"github.com/Chative-cs-agent/server/internal/agent/llm"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/prompts"
	"github.com/Chative-cs-agent/server/internal/agent/retriever"
)

const (
	msgAfterSalesUnavailable = "抱歉，售后处理服务暂时不可用，请稍后重试或联系人工客服。"
	// MsgPolicyNotFound is the explicit miss statement of the after-sales template.
	MsgPolicyNotFound = "未找到与您问题相关的售后政策信息。"
)

// AfterSalesHandler answers return, refund, repair and delivery policy questions.
type AfterSalesHandler struct {
	groundedHandler
}

var _ Handler = (*AfterSalesHandler)(nil)

// NewAfterSalesHandler builds the handler; completer may be nil.
func NewAfterSalesHandler(search retriever.Searcher, completer llm.Completer, cfg KnowledgeConfig) *AfterSalesHandler {
	return &AfterSalesHandler{groundedHandler{
		name:        AgentAfterSales,
		intent:      model.IntentAfterSales,
		role:        prompts.RoleAfterSales,
		unavailable: msgAfterSalesUnavailable,
		search:      search,
		completer:   completer,
		cfg:         cfg,
		template:    afterSalesTemplate,
	}}
}

func afterSalesTemplate(g *groundedHandler, snippets []retriever.Snippet, req Request) string {
	var sb strings.Builder
	if len(snippets) > 0 {
		sb.WriteString("您好！关于您的问题，我为您查询了相关的售后政策：\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "\n• %s：%s", s.Source, s.Content)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("您好！")
		sb.WriteString(MsgPolicyNotFound)
		sb.WriteString("\n")
	}

	if o := req.Order; o != nil {
		fmt.Fprintf(&sb, "\n关于订单 %s：\n订单状态：%s\n商品名称：%s\n", o.OrderID, orNA(o.Status), orNA(o.ProductName))
	}

	fmt.Fprintf(&sb, "\n如果您需要进一步帮助，请联系我们的客服热线：%s", g.cfg.Business.Hotline)
	return sb.String()
}
