package handlers

import (
	"context"
	"math/rand/v2"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
)

var greetings = []string{
	"您好！欢迎使用我们的智能客服系统，我是AI助手，很高兴为您服务！请问有什么可以帮助您的吗？",
	"Hello！很高兴为您提供帮助。请告诉我您遇到了什么问题，我会尽力为您解决。",
	"您好！我是您的专属客服助手，请输入您的问题，我将为您提供专业服务。",
}

// Greetings returns the fixed greeting texts.
func Greetings() []string {
	return append([]string(nil), greetings...)
}

const (
	msgUnknown = `抱歉，我没有完全理解您的问题。

我可以帮助您处理以下类型的问题：
• 商品咨询和推荐
• 订单查询和状态跟踪
• 售后服务和退换货
• 投诉建议和意见反馈

请重新描述您的问题，我会尽力为您提供帮助！`
	msgRecommendation = "我来为您推荐合适的产品。请告诉我您的具体需求，比如预算范围、使用场景、品牌偏好等，我会为您提供个性化的产品推荐。"
	msgComplaint      = "非常抱歉给您带来不好的体验。我会将您的问题和建议认真记录并反馈给相关部门。如果需要人工客服介入，我也可以为您转接。"
	msgGeneral        = "我正在学习中，请提供更多详细信息，我会尽力帮助您解决问题。"
)

// CannedHandler answers greetings and anything without a specialised
// handler from fixed texts. It makes no external calls.
type CannedHandler struct {
	pick func(n int) int
}

var _ Handler = (*CannedHandler)(nil)

func NewCannedHandler() *CannedHandler {
	return &CannedHandler{pick: rand.IntN}
}

func (h *CannedHandler) Name() string { return AgentCanned }

func (h *CannedHandler) text(intent model.Intent) (string, string) {
	switch intent {
	case model.IntentGreeting:
		return greetings[h.pick(len(greetings))], "greeting"
	case model.IntentRecommendation:
		return msgRecommendation, "recommendation"
	case model.IntentComplaint:
		return msgComplaint, "complaint"
	case model.IntentUnknown:
		return msgUnknown, "help_suggestion"
	}
	return msgGeneral, "general"
}

func (h *CannedHandler) Answer(_ context.Context, req Request) *model.AgentResponse {
	content, kind := h.text(req.Intent)
	intent := req.Intent
	if intent == "" {
		intent = model.IntentUnknown
	}
	return succeeded(intent, AgentCanned, content).WithContext("response_type", kind)
}

func (h *CannedHandler) StreamAnswer(ctx context.Context, req Request) *stream.Reader {
	content, _ := h.text(req.Intent)
	return stream.FromText(ctx, content)
}
