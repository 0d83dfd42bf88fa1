// Package prompts renders the chat messages sent to the router and answer models.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

//go:embed template/answer_prompt.txt
var answerSystemPrompt string

const (
	RoleAfterSales = "售后客服"
	RoleProduct    = "售前顾问"
)

// RenderRouter builds the classification request for one user message.
// conversation is the serialised recent history and may be empty.
func RenderRouter(ctx context.Context, query, conversation string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(routerSystemPrompt),
		schema.UserMessage("{{.Query}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Context": conversation,
		"Query":   query,
	})
	if err != nil {
		return nil, fmt.Errorf("router prompt render: %w", err)
	}
	return msgs, nil
}

// AnswerInput feeds RenderAnswer.
type AnswerInput struct {
	BusinessName string
	Hotline      string
	Role         string
	Query        string
	Knowledge    string
	OrderInfo    string
	History      []*schema.Message
}

// RenderAnswer builds a grounded answer request. The system prompt embeds the
// retrieved knowledge and tells the model to decline when there is none.
func RenderAnswer(ctx context.Context, in AnswerInput) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(answerSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.Query}}"),
	)
	history := in.History
	if history == nil {
		history = []*schema.Message{}
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"BusinessName": in.BusinessName,
		"Hotline":      in.Hotline,
		"Role":         in.Role,
		"Query":        in.Query,
		"Knowledge":    in.Knowledge,
		"OrderInfo":    in.OrderInfo,
		"history":      history,
	})
	if err != nil {
		return nil, fmt.Errorf("answer prompt render: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("answer prompt render: empty result")
	}
	return msgs, nil
}
