package coordinator

import (
	"sync"

	"github.com/Chative-cs-agent/server/internal/agent/handlers"
)

// StatRouter is the statistics key of the intent router.
const StatRouter = "intent_router"

// AgentStats are running totals for one component.
type AgentStats struct {
	Calls          int     `json:"calls"`
	SuccessRate    float64 `json:"success_rate"`
	AvgProcessTime float64 `json:"avg_processing_time"`
}

// Stats tracks per-component call counts with incremental means.
type Stats struct {
	mu     sync.Mutex
	agents map[string]*AgentStats
}

func NewStats() *Stats {
	s := &Stats{agents: map[string]*AgentStats{}}
	for _, name := range []string{StatRouter, handlers.AgentOrder, handlers.AgentAfterSales, handlers.AgentProduct} {
		s.agents[name] = &AgentStats{}
	}
	return s
}

// Record folds one call into the running totals; seconds is the call latency.
func (s *Stats) Record(name string, success bool, seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.agents[name]
	if !ok {
		st = &AgentStats{}
		s.agents[name] = st
	}
	st.Calls++
	n := float64(st.Calls)
	ok01 := 0.0
	if success {
		ok01 = 1
	}
	st.SuccessRate += (ok01 - st.SuccessRate) / n
	st.AvgProcessTime += (seconds - st.AvgProcessTime) / n
}

// Snapshot returns a copy of the current totals.
func (s *Stats) Snapshot() map[string]AgentStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]AgentStats, len(s.agents))
	for name, st := range s.agents {
		out[name] = *st
	}
	return out
}
