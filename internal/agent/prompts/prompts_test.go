package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRouter(t *testing.T) {
	t.Run("Should place the query in the user message", func(t *testing.T) {
		msgs, err := RenderRouter(context.Background(), "我的订单{{到哪了}}", "")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, schema.System, msgs[0].Role)
		assert.Contains(t, msgs[0].Content, "after_sales")
		assert.NotContains(t, msgs[0].Content, "对话上下文：")
		assert.Equal(t, "我的订单{{到哪了}}", msgs[1].Content)
	})

	t.Run("Should include conversation context when present", func(t *testing.T) {
		msgs, err := RenderRouter(context.Background(), "那退货呢", "用户: 你好")
		require.NoError(t, err)
		assert.Contains(t, msgs[0].Content, "用户: 你好")
	})
}

func TestRenderAnswer(t *testing.T) {
	t.Run("Should embed knowledge and history", func(t *testing.T) {
		msgs, err := RenderAnswer(context.Background(), AnswerInput{
			BusinessName: "智能客服",
			Hotline:      "400-123-4567",
			Role:         RoleAfterSales,
			Query:        "怎么退货",
			Knowledge:    "[退货政策] 签收后7天内可申请退货",
			History:      []*schema.Message{schema.UserMessage("你好"), schema.AssistantMessage("您好", nil)},
		})
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Contains(t, msgs[0].Content, "签收后7天内可申请退货")
		assert.Contains(t, msgs[0].Content, RoleAfterSales)
		assert.NotContains(t, msgs[0].Content, "订单信息")
		assert.Equal(t, "怎么退货", msgs[3].Content)
	})

	t.Run("Should instruct the model to decline without knowledge", func(t *testing.T) {
		msgs, err := RenderAnswer(context.Background(), AnswerInput{Role: RoleProduct, Query: "有什么手机", Hotline: "400"})
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Contains(t, msgs[0].Content, "（无）")
		assert.Contains(t, msgs[0].Content, "未找到相关信息")
	})
}
