package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/llm"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/prompts"
	"github.com/Chative-cs-agent/server/internal/agent/retriever"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// ContextKnowledgeUsed is set on responses whose content came from retrieved knowledge.
const ContextKnowledgeUsed = "knowledge_used"

// KnowledgeConfig is shared by the retrieval backed handlers.
type KnowledgeConfig struct {
	Business model.BusinessConfig
	Limit    int
}

// groundedHandler answers from retrieved snippets, through the LLM when one
// is configured and through a deterministic template otherwise. It never
// states facts that were not retrieved.
type groundedHandler struct {
	name        string
	intent      model.Intent
	role        string
	unavailable string
	search      retriever.Searcher
	completer   llm.Completer
	cfg         KnowledgeConfig
	template    func(g *groundedHandler, snippets []retriever.Snippet, req Request) string
	query       func(req Request) string
}

func (g *groundedHandler) Name() string { return g.name }

func (g *groundedHandler) limit() int {
	if g.cfg.Limit > 0 {
		return g.cfg.Limit
	}
	return 3
}

func (g *groundedHandler) retrieve(ctx context.Context, req Request) ([]retriever.Snippet, error) {
	q := req.Query
	if g.query != nil {
		q = g.query(req)
	}
	snippets, err := g.search.Search(ctx, q, g.limit())
	if err != nil {
		logx.Error().Err(err).
			Str("agent", g.name).
			Str("session_id", req.SessionID).
			Str("query", common.Preview(req.Query, 50)).
			Msg("knowledge retrieval failed")
		return nil, err
	}
	return snippets, nil
}

func (g *groundedHandler) messages(ctx context.Context, snippets []retriever.Snippet, req Request) ([]*schema.Message, error) {
	orderInfo := ""
	if req.Order != nil {
		orderInfo = FormatOrderDetails(NewOrderInfo(req.Order))
	}
	return prompts.RenderAnswer(ctx, prompts.AnswerInput{
		BusinessName: g.cfg.Business.Name,
		Hotline:      g.cfg.Business.Hotline,
		Role:         g.role,
		Query:        req.Query,
		Knowledge:    formatKnowledge(snippets),
		OrderInfo:    orderInfo,
		History:      req.History,
	})
}

func (g *groundedHandler) Answer(ctx context.Context, req Request) *model.AgentResponse {
	snippets, err := g.retrieve(ctx, req)
	if err != nil {
		return failed(g.intent, g.name, g.unavailable)
	}

	content := g.template(g, snippets, req)
	if g.completer != nil {
		msgs, err := g.messages(ctx, snippets, req)
		if err == nil {
			content, err = g.completer.Complete(ctx, msgs)
		}
		if err != nil {
			logx.Error().Err(err).Str("agent", g.name).Str("session_id", req.SessionID).Msg("answer generation failed")
			return failed(g.intent, g.name, g.unavailable)
		}
	}

	resp := succeeded(g.intent, g.name, content)
	resp.WithContext(ContextKnowledgeUsed, len(snippets) > 0)
	for _, s := range snippets {
		resp.Sources = append(resp.Sources, s.Reference())
	}
	if req.Order != nil {
		resp.StructuredInfo = map[string]any{"order_info": NewOrderInfo(req.Order)}
	}
	return resp
}

// StreamAnswer forwards model chunks verbatim, or streams the template one
// rune at a time when no model is configured.
func (g *groundedHandler) StreamAnswer(ctx context.Context, req Request) *stream.Reader {
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		snippets, err := g.retrieve(ctx, req)
		if err != nil {
			req.Trace.Fail()
			return stream.EmitRunes(ctx, emit, g.unavailable)
		}
		req.Trace.UseKnowledge(len(snippets) > 0)
		if g.completer == nil {
			return stream.EmitRunes(ctx, emit, g.template(g, snippets, req))
		}

		msgs, err := g.messages(ctx, snippets, req)
		if err != nil {
			req.Trace.Fail()
			return stream.EmitRunes(ctx, emit, g.unavailable)
		}
		n, err := forward(ctx, g.completer.Stream(ctx, msgs), emit)
		if err != nil && n == 0 {
			logx.Error().Err(err).Str("agent", g.name).Msg("answer stream failed before first chunk")
			req.Trace.Fail()
			return stream.EmitRunes(ctx, emit, g.unavailable)
		}
		return err
	})
}

func formatKnowledge(snippets []retriever.Snippet) string {
	var sb strings.Builder
	for i, s := range snippets {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s] %s", s.Source, s.Content)
	}
	return sb.String()
}
