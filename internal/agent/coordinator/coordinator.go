// Package coordinator orchestrates one customer message end to end: cache
// check, intent routing, dispatch to a handler and detached persistence.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/cache"
	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/conversations"
	"github.com/Chative-cs-agent/server/internal/agent/handlers"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/router"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
	"github.com/Chative-cs-agent/server/internal/agent/tasks"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

const (
	MsgProcessingError = "抱歉，系统处理您的消息时出现错误，请稍后重试或联系人工客服。"
	MsgStreamError     = "抱歉，生成回答时出现错误。"
	MsgEmptyMessage    = "消息内容不能为空，请输入您的问题。"
)

// Context keys added by the coordinator.
const (
	ContextCacheHit  = "cache_hit"
	ContextSessionID = "session_id"
	ContextTotalTime = "total_processing_time"
)

// IntentRouter classifies a message; it never fails.
type IntentRouter interface {
	Route(ctx context.Context, text string, hints map[string]any) model.RouteDecision
}

var _ IntentRouter = (*router.Router)(nil)

// Deps are the collaborators of a Coordinator. Store and Conversations may
// be nil, which disables the durable transcript and the session window.
type Deps struct {
	Router        IntentRouter
	Handlers      Handlers
	Cache         *cache.Gateway
	HotPolicy     cache.HotPolicy
	Tasks         *tasks.Runner
	Store         model.MessageStore
	Conversations *conversations.MessagesManager
	ResponseTTL   time.Duration
}

// Coordinator holds no per-request state; it is safe for concurrent use.
type Coordinator struct {
	router        IntentRouter
	dispatch      dispatchTable
	cache         *cache.Gateway
	hot           cache.HotPolicy
	tasks         *tasks.Runner
	store         model.MessageStore
	conversations *conversations.MessagesManager
	responseTTL   time.Duration
	stats         *Stats
}

func New(deps Deps) *Coordinator {
	ttl := deps.ResponseTTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	hot := deps.HotPolicy
	if hot.HotIntents == nil {
		hot = cache.DefaultHotPolicy()
	}
	return &Coordinator{
		router:        deps.Router,
		dispatch:      newDispatchTable(deps.Handlers),
		cache:         deps.Cache,
		hot:           hot,
		tasks:         deps.Tasks,
		store:         deps.Store,
		conversations: deps.Conversations,
		responseTTL:   ttl,
		stats:         NewStats(),
	}
}

// Stats returns a snapshot of per-component statistics.
func (c *Coordinator) Stats() map[string]AgentStats {
	return c.stats.Snapshot()
}

// ProcessMessage answers one message in full. It always returns a response.
func (c *Coordinator) ProcessMessage(ctx context.Context, text, sessionID string) (resp *model.AgentResponse) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error().Str("session_id", sessionID).Str("query", common.Preview(text, 100)).
				Dur("elapsed", time.Since(start)).Msgf("message processing panic: %v", rec)
			resp = &model.AgentResponse{Success: false, Content: MsgProcessingError, Intent: model.IntentUnknown}
			resp.WithContext("error", fmt.Sprint(rec))
		}
		resp.WithContext(ContextTotalTime, time.Since(start).Seconds())
	}()

	if strings.TrimSpace(text) == "" {
		return &model.AgentResponse{Success: false, Content: MsgEmptyMessage, Intent: model.IntentUnknown}
	}

	if entry := c.lookupCache(ctx, text); entry != nil {
		resp = &model.AgentResponse{Success: true, Content: entry.Response, Intent: model.IntentGeneral}
		resp.WithContext(ContextCacheHit, true)
		c.persistTurn(ctx, turn{sessionID: sessionID, query: text, answer: entry.Response, intent: model.IntentGeneral, cacheHit: true})
		return resp
	}

	hints, history := c.sessionContext(ctx, sessionID)
	decision := c.router.Route(ctx, text, hints)
	c.stats.Record(StatRouter, decision.Success, decision.Elapsed)
	if !decision.Success {
		resp = &model.AgentResponse{Success: false, Content: MsgProcessingError, Intent: decision.Intent, Context: decision.Context()}
		return resp
	}

	h, req := c.dispatch.plan(ctx, text, sessionID, decision, history)
	handlerStart := time.Now()
	resp = h.Answer(ctx, req)
	c.stats.Record(h.Name(), resp.Success, time.Since(handlerStart).Seconds())

	mergeContext(resp, decision.Context())
	resp.WithContext(ContextCacheHit, false)
	if sessionID != "" {
		resp.WithContext(ContextSessionID, sessionID)
	}

	logx.Info().
		Str("session_id", sessionID).
		Str("intent", resp.Intent.String()).
		Str("agent", h.Name()).
		Bool("success", resp.Success).
		Dur("elapsed", time.Since(start)).
		Msg("message processed")

	c.persistTurn(ctx, turn{
		sessionID:     sessionID,
		query:         text,
		answer:        resp.Content,
		intent:        resp.Intent,
		success:       resp.Success,
		usedKnowledge: resp.ContextBool(handlers.ContextKnowledgeUsed),
		cacheable:     true,
	})
	return resp
}

// StreamResponse answers one message as a stream of text chunks. Failures
// end the stream with a readable apology instead of an error. A completed
// stream is persisted and considered for the hot-question cache like a
// one-shot answer.
func (c *Coordinator) StreamResponse(ctx context.Context, text, sessionID string) *stream.Reader {
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		start := time.Now()

		if strings.TrimSpace(text) == "" {
			emit(MsgEmptyMessage)
			return nil
		}

		// A cached answer is delivered whole, never re-streamed.
		if entry := c.lookupCache(ctx, text); entry != nil {
			if !emit(entry.Response) {
				return ctx.Err()
			}
			c.persistTurn(ctx, turn{sessionID: sessionID, query: text, answer: entry.Response, intent: model.IntentGeneral, cacheHit: true})
			return nil
		}

		hints, history := c.sessionContext(ctx, sessionID)
		decision := c.router.Route(ctx, text, hints)
		c.stats.Record(StatRouter, decision.Success, decision.Elapsed)
		if !decision.Success {
			emit(MsgProcessingError)
			return nil
		}

		h, req := c.dispatch.plan(ctx, text, sessionID, decision, history)
		req.Trace = handlers.NewTrace()
		handlerStart := time.Now()
		answer, err := c.relay(ctx, h.StreamAnswer(ctx, req), emit)
		if err != nil && ctx.Err() != nil {
			logx.Warn().Str("session_id", sessionID).Str("agent", h.Name()).Msg("stream delivery cancelled")
			return ctx.Err()
		}
		c.stats.Record(h.Name(), err == nil, time.Since(handlerStart).Seconds())
		if err != nil {
			logx.Error().Err(err).
				Str("session_id", sessionID).
				Str("agent", h.Name()).
				Str("query", common.Preview(text, 100)).
				Dur("elapsed", time.Since(start)).
				Msg("stream generation failed")
			emit(MsgStreamError)
			answer += MsgStreamError
		}

		c.persistTurn(ctx, turn{
			sessionID:     sessionID,
			query:         text,
			answer:        answer,
			cacheAnswer:   req.Trace.Answer(answer),
			intent:        decision.Intent,
			success:       err == nil && !req.Trace.Failed(),
			usedKnowledge: req.Trace.KnowledgeUsed(),
			cacheable:     true,
		})
		return nil
	})
}

// relay forwards chunks unchanged and returns their concatenation.
func (c *Coordinator) relay(ctx context.Context, r *stream.Reader, emit stream.EmitFunc) (string, error) {
	defer r.Close()
	var sb strings.Builder
	for {
		ev := r.Next(ctx)
		switch ev.Kind {
		case stream.KindChunk:
			if !emit(ev.Text) {
				return sb.String(), ctx.Err()
			}
			sb.WriteString(ev.Text)
		case stream.KindEnd:
			return sb.String(), nil
		default:
			return sb.String(), ev.Err
		}
	}
}

func (c *Coordinator) lookupCache(ctx context.Context, text string) *cache.Entry {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Get(ctx, text)
	if err != nil {
		logx.Warn().Err(err).Str("query", common.Preview(text, 30)).Msg("cache check failed, continuing")
		return nil
	}
	if entry != nil {
		logx.Info().Str("query", common.Preview(text, 30)).Msg("cache hit")
	}
	return entry
}

// sessionContext loads routing hints and answer history; failures only
// cost context.
func (c *Coordinator) sessionContext(ctx context.Context, sessionID string) (map[string]any, []*schema.Message) {
	if c.conversations == nil || sessionID == "" {
		return nil, nil
	}
	history, err := c.conversations.History(ctx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("session history unavailable")
		return nil, nil
	}
	routing := conversations.FormatRoutingContext(history)
	if routing == "" {
		return nil, history
	}
	return map[string]any{router.HintConversation: routing}, history
}

// mergeContext adds routing metadata without overriding handler keys.
func mergeContext(resp *model.AgentResponse, routing map[string]any) {
	for k, v := range routing {
		if _, ok := resp.Context[k]; ok {
			continue
		}
		resp.WithContext(k, v)
	}
}
