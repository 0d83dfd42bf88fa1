package router

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-cs-agent/server/internal/agent/llm/llmtest"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
)

func TestClassifyRules(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		intent model.Intent
		fields map[string]string
	}{
		{"Should route order keywords with the order id", "订单号ABC12345怎么样了", model.IntentOrder, map[string]string{model.FieldOrderID: "ABC12345"}},
		{"Should route english order questions", "where is my order #A1B2C3D4", model.IntentOrder, map[string]string{model.FieldOrderID: "A1B2C3D4"}},
		{"Should route tracking numbers to logistics", "SF1234567890 到哪了", model.IntentLogistics, map[string]string{model.FieldTrackingNumber: "SF1234567890"}},
		{"Should route labelled tracking numbers", "运单号：YT0987654321", model.IntentLogistics, map[string]string{model.FieldTrackingNumber: "YT0987654321"}},
		{"Should route generic logistics questions without a number", "我的快递什么时候到", model.IntentLogistics, map[string]string{}},
		{"Should route after-sales keywords", "我想退货", model.IntentAfterSales, map[string]string{}},
		{"Should route product keywords with the product type", "这款手机价格多少", model.IntentPresales, map[string]string{model.FieldProductType: "手机"}},
		{"Should route greetings", "你好", model.IntentGreeting, map[string]string{}},
		{"Should match english greetings as whole words", "Hi there", model.IntentGreeting, map[string]string{}},
		{"Should default to unknown", "今天天气怎么样", model.IntentUnknown, map[string]string{}},
		{"Should not read a phone number as a tracking number", "我的电话13812345678", model.IntentUnknown, map[string]string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ClassifyRules(tc.text)
			assert.Equal(t, tc.intent, d.Intent)
			assert.Equal(t, model.RoutingRule, d.RoutingMethod)
			assert.True(t, d.Success)
			assert.Equal(t, tc.fields, d.ExtractedFields)
		})
	}

	t.Run("Should let the first category in priority order win", func(t *testing.T) {
		assert.Equal(t, model.IntentOrder, ClassifyRules("订单ABC123456质量有问题要退货").Intent)
		assert.Equal(t, model.IntentLogistics, ClassifyRules("快递坏了要退货").Intent)
		assert.Equal(t, model.IntentAfterSales, ClassifyRules("手机坏了要维修").Intent)
		assert.Equal(t, model.IntentPresales, ClassifyRules("你好，推荐一款耳机").Intent)
	})

	t.Run("Should be a pure function of the text", func(t *testing.T) {
		for _, text := range []string{"你好", "我想退货", "SF1234567890", "随便说点什么"} {
			assert.Equal(t, ClassifyRules(text), ClassifyRules(text))
		}
	})
}

func TestRouter_Route(t *testing.T) {
	ctx := context.Background()

	t.Run("Should use rules when no model is configured", func(t *testing.T) {
		r := New(nil)
		assert.False(t, r.ModelEnabled())
		d := r.Route(ctx, "你好", nil)
		assert.Equal(t, model.IntentGreeting, d.Intent)
		assert.Equal(t, model.RoutingRule, d.RoutingMethod)
		assert.True(t, d.Success)
	})

	t.Run("Should use the model classification", func(t *testing.T) {
		fake := &llmtest.Completer{Reply: `{"intent":"after_sales","confidence":0.8,"extracted_info":{},"reasoning":"退货"}`}
		d := New(fake).Route(ctx, "东西不想要了", map[string]any{HintConversation: "用户: 你好"})
		assert.Equal(t, model.IntentAfterSales, d.Intent)
		assert.Equal(t, model.RoutingModel, d.RoutingMethod)
		assert.Equal(t, 1, fake.Calls())

		msgs := fake.LastInput()
		require.NotEmpty(t, msgs)
		assert.Equal(t, schema.System, msgs[0].Role)
		assert.Contains(t, msgs[0].Content, "用户: 你好")
	})

	t.Run("Should send the model cleaned text", func(t *testing.T) {
		fake := &llmtest.Completer{Reply: `{"intent":"after_sales"}`}
		New(fake).Route(ctx, "  我想   退货@@ ", nil)
		msgs := fake.LastInput()
		require.NotEmpty(t, msgs)
		assert.Equal(t, "我想 退货", msgs[len(msgs)-1].Content)
	})

	t.Run("Should fill identifiers the model missed", func(t *testing.T) {
		fake := &llmtest.Completer{Reply: `{"intent":"order"}`}
		d := New(fake).Route(ctx, "订单号ABC12345怎么样了", nil)
		assert.Equal(t, "ABC12345", d.Field(model.FieldOrderID))
	})

	t.Run("Should coerce unknown labels", func(t *testing.T) {
		fake := &llmtest.Completer{Reply: `{"intent":"small_talk"}`}
		d := New(fake).Route(ctx, "你好", nil)
		assert.Equal(t, model.IntentUnknown, d.Intent)
		assert.Equal(t, model.RoutingModel, d.RoutingMethod)
	})

	t.Run("Should fall back to rules when the model fails", func(t *testing.T) {
		fake := &llmtest.Completer{Err: errors.New("timeout")}
		d := New(fake).Route(ctx, "我想退货", nil)
		assert.Equal(t, model.IntentAfterSales, d.Intent)
		assert.Equal(t, model.RoutingRule, d.RoutingMethod)
		assert.True(t, d.Success)
	})

	t.Run("Should fall back to rules on malformed model output", func(t *testing.T) {
		fake := &llmtest.Completer{Reply: "not json at all"}
		d := New(fake).Route(ctx, "你好", nil)
		assert.Equal(t, model.IntentGreeting, d.Intent)
		assert.Equal(t, model.RoutingRule, d.RoutingMethod)
	})

	t.Run("Should never panic", func(t *testing.T) {
		d := New(panicCompleter{}).Route(ctx, "你好", nil)
		assert.Equal(t, model.IntentUnknown, d.Intent)
		assert.False(t, d.Success)
	})
}

type panicCompleter struct{}

func (panicCompleter) Complete(context.Context, []*schema.Message) (string, error) {
	panic("boom")
}

func (panicCompleter) Stream(ctx context.Context, _ []*schema.Message) *stream.Reader {
	panic("boom")
}
