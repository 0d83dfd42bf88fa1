package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/llm"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/parsers"
	"github.com/Chative-cs-agent/server/internal/agent/prompts"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// HintConversation is the hints key holding the serialised recent history.
const HintConversation = "conversation"

// Router classifies user messages. Without a model it uses ClassifyRules only.
type Router struct {
	classifier llm.Completer
}

func New(classifier llm.Completer) *Router {
	return &Router{classifier: classifier}
}

// ModelEnabled reports whether a classification model is configured.
func (r *Router) ModelEnabled() bool { return r.classifier != nil }

// Route never fails: any internal fault yields {unknown, success=false}.
func (r *Router) Route(ctx context.Context, text string, hints map[string]any) (decision model.RouteDecision) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error().Str("component", "router").Msgf("panic recovered: %v", rec)
			decision = model.RouteDecision{
				Intent:        model.IntentUnknown,
				RoutingMethod: model.RoutingRule,
				Success:       false,
				Reasoning:     "internal error",
			}
		}
		decision.Elapsed = time.Since(start).Seconds()
	}()

	if r.classifier != nil {
		d, err := r.classify(ctx, text, hints)
		if err == nil {
			return d
		}
		logx.Warn().Err(err).Str("query", common.Preview(text, 50)).Msg("model routing failed, falling back to rules")
	}

	decision = ClassifyRules(text)
	logx.Debug().
		Str("intent", decision.Intent.String()).
		Str("method", string(decision.RoutingMethod)).
		Msg("routed")
	return decision
}

func (r *Router) classify(ctx context.Context, text string, hints map[string]any) (model.RouteDecision, error) {
	msgs, err := prompts.RenderRouter(ctx, common.CleanText(text), serializeHints(hints))
	if err != nil {
		return model.RouteDecision{}, err
	}
	out, err := r.classifier.Complete(ctx, msgs)
	if err != nil {
		return model.RouteDecision{}, err
	}
	d, err := parsers.ParseIntentResponse(out)
	if err != nil {
		return model.RouteDecision{}, err
	}

	// Fill identifiers the model missed with the deterministic extractors.
	if d.Field(model.FieldOrderID) == "" {
		setField(d.ExtractedFields, model.FieldOrderID, labelledOrderID(text))
	}
	if d.Field(model.FieldTrackingNumber) == "" {
		setField(d.ExtractedFields, model.FieldTrackingNumber, common.ExtractTrackingNumber(text))
	}

	logx.Debug().
		Str("intent", d.Intent.String()).
		Float64("confidence", d.Confidence).
		Str("method", string(d.RoutingMethod)).
		Msg("routed")
	return *d, nil
}

// labelledOrderID only trusts ids that the text explicitly marks as orders.
func labelledOrderID(text string) string {
	if !common.ContainsAny(common.NormalizeQuery(text), orderKeywords) {
		return ""
	}
	return common.ExtractOrderID(text)
}

func serializeHints(hints map[string]any) string {
	if len(hints) == 0 {
		return ""
	}
	if conv, ok := hints[HintConversation].(string); ok && len(hints) == 1 {
		return conv
	}
	b, err := json.Marshal(hints)
	if err != nil {
		return fmt.Sprint(hints)
	}
	return string(b)
}
