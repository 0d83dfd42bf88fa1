package cache

import (
	"fmt"
	"unicode/utf8"

	"github.com/Chative-cs-agent/server/internal/agent/model"
)

// HotPolicy decides whether a freshly generated answer is worth caching.
// Lengths are counted in runes.
type HotPolicy struct {
	KnowledgeLen int
	HotIntentLen int
	LongAnswer   int
	HotIntents   map[model.Intent]bool
}

func DefaultHotPolicy() HotPolicy {
	return HotPolicy{
		KnowledgeLen: 10,
		HotIntentLen: 20,
		LongAnswer:   80,
		HotIntents: map[model.Intent]bool{
			model.IntentAfterSales: true,
			model.IntentPresales:   true,
			model.IntentOrder:      true,
		},
	}
}

// NewHotPolicy builds a policy from config, keeping default hot intents.
func NewHotPolicy(cfg model.CacheConfig) HotPolicy {
	p := DefaultHotPolicy()
	if cfg.KnowledgeLen > 0 {
		p.KnowledgeLen = cfg.KnowledgeLen
	}
	if cfg.HotIntentLen > 0 {
		p.HotIntentLen = cfg.HotIntentLen
	}
	if cfg.LongAnswer > 0 {
		p.LongAnswer = cfg.LongAnswer
	}
	return p
}

// HotSignal is what the policy looks at for one completed turn.
type HotSignal struct {
	Intent        model.Intent
	UsedKnowledge bool
	Answer        string
}

// Decide returns whether to cache and a human readable reason.
func (p HotPolicy) Decide(s HotSignal) (bool, string) {
	n := utf8.RuneCountInString(s.Answer)
	switch {
	case s.UsedKnowledge && n > p.KnowledgeLen:
		return true, fmt.Sprintf("knowledge backed answer (%d chars)", n)
	case p.HotIntents[s.Intent] && n > p.HotIntentLen:
		return true, fmt.Sprintf("hot intent %s (%d chars)", s.Intent, n)
	case n > p.LongAnswer:
		return true, fmt.Sprintf("long answer (%d chars)", n)
	}
	return false, "below thresholds"
}
