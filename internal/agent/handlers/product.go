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
	msgProductUnavailable = "抱歉，商品查询服务暂时不可用，请稍后重试。"
	// MsgProductNotFound is the explicit miss statement of the product template.
	MsgProductNotFound = "未在商品库中找到与您咨询相关的产品信息。"
)

// ProductHandler answers presales and recommendation questions from the catalogue.
type ProductHandler struct {
	groundedHandler
}

var _ Handler = (*ProductHandler)(nil)

// NewProductHandler builds the handler; completer may be nil.
func NewProductHandler(search retriever.Searcher, completer llm.Completer, cfg KnowledgeConfig) *ProductHandler {
	return &ProductHandler{groundedHandler{
		name:        AgentProduct,
		intent:      model.IntentPresales,
		role:        prompts.RoleProduct,
		unavailable: msgProductUnavailable,
		search:      search,
		completer:   completer,
		cfg:         cfg,
		template:    productTemplate,
		query:       productQuery,
	}}
}

func productQuery(req Request) string {
	pt := req.Field(model.FieldProductType)
	if pt == "" || strings.Contains(req.Query, pt) {
		return req.Query
	}
	return req.Query + " " + pt
}

func productTemplate(g *groundedHandler, snippets []retriever.Snippet, _ Request) string {
	var sb strings.Builder
	if len(snippets) > 0 {
		sb.WriteString("您好！关于您的咨询，我为您整理了相关商品信息：\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "\n• %s：%s", s.Source, s.Content)
		}
		sb.WriteString("\n\n如需了解更多具体产品信息，请告诉我您的预算范围和使用需求。")
		return sb.String()
	}

	sb.WriteString("您好！感谢您的咨询。\n\n")
	sb.WriteString(MsgProductNotFound)
	sb.WriteString("\n\n为了更好地为您提供产品推荐，请提供以下信息：\n")
	sb.WriteString("• 具体产品类别（如手机、电脑等）\n")
	sb.WriteString("• 价格预算范围\n")
	sb.WriteString("• 使用需求（如办公、游戏、摄影等）\n")
	fmt.Fprintf(&sb, "\n您也可以联系我们的客服热线：%s 获取专业推荐！", g.cfg.Business.Hotline)
	return sb.String()
}
