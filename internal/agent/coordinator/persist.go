package coordinator

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"

	"github.com/Chative-cs-agent/server/internal/agent/cache"
	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// turn is one completed exchange handed to background persistence.
type turn struct {
	sessionID string
	query     string
	answer    string
	// cacheAnswer is answer without any progress preamble; empty means answer.
	cacheAnswer   string
	intent        model.Intent
	success       bool
	usedKnowledge bool
	cacheHit      bool
	// cacheable marks answers eligible for the hot-question write.
	cacheable bool
}

// persistTurn schedules the transcript write and the hot-question cache write
// as independent detached tasks. Neither can fail the caller.
func (c *Coordinator) persistTurn(ctx context.Context, t turn) {
	if c.tasks == nil {
		return
	}

	if t.sessionID != "" && (c.store != nil || c.conversations != nil) {
		c.tasks.Go(ctx, "persist_turn", func(ctx context.Context) error {
			return c.writeTranscript(ctx, t)
		})
	}

	if t.cacheable && t.success && !t.cacheHit && c.cache != nil {
		c.tasks.Go(ctx, "hot_question_cache", func(ctx context.Context) error {
			return c.writeHotQuestion(ctx, t)
		})
	}
}

func (c *Coordinator) writeTranscript(ctx context.Context, t turn) error {
	var errs []error
	query := common.RedactPhone(t.query)
	if c.store != nil {
		meta := map[string]any{"intent": t.intent.String(), "success": t.success, "cache_hit": t.cacheHit}
		if err := c.store.AppendMessage(ctx, t.sessionID, string(schema.User), query, nil); err != nil {
			errs = append(errs, err)
		} else if err := c.store.AppendMessage(ctx, t.sessionID, string(schema.Assistant), t.answer, meta); err != nil {
			errs = append(errs, err)
		}
	}
	if c.conversations != nil {
		if err := c.conversations.SaveTurn(ctx, t.sessionID, query, t.answer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) writeHotQuestion(ctx context.Context, t turn) error {
	answer := t.cacheAnswer
	if answer == "" {
		answer = t.answer
	}
	ok, reason := c.hot.Decide(cache.HotSignal{Intent: t.intent, UsedKnowledge: t.usedKnowledge, Answer: answer})
	if !ok {
		logx.Debug().Str("query", common.Preview(t.query, 30)).Str("reason", reason).Msg("not caching answer")
		return nil
	}
	if err := c.cache.Set(ctx, t.query, answer, c.responseTTL); err != nil {
		return err
	}
	logx.Info().Str("query", common.Preview(t.query, 30)).Str("reason", reason).Msg("cached hot question")
	return nil
}
