package handlers

import (
	"strings"
	"sync"
)

// Trace records facts about a streamed answer that are only known once its
// producer has run: whether retrieved knowledge backed it, whether it is an
// apology or a miss, and any progress line emitted ahead of the answer.
// A nil Trace ignores writes and reports zero values.
type Trace struct {
	mu            sync.Mutex
	knowledgeUsed bool
	failed        bool
	preamble      string
}

func NewTrace() *Trace { return &Trace{} }

// UseKnowledge records whether retrieval returned any snippets.
func (t *Trace) UseKnowledge(used bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.knowledgeUsed = used
	t.mu.Unlock()
}

// Fail marks the answer as an apology or a miss.
func (t *Trace) Fail() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.failed = true
	t.mu.Unlock()
}

// SetPreamble records a progress line emitted ahead of the answer.
func (t *Trace) SetPreamble(text string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.preamble = text
	t.mu.Unlock()
}

// KnowledgeUsed reports whether the answer was built from retrieved snippets.
func (t *Trace) KnowledgeUsed() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.knowledgeUsed
}

// Failed reports whether the streamed text is an apology or a lookup miss.
func (t *Trace) Failed() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Answer strips the progress line from the streamed text.
func (t *Trace) Answer(streamed string) string {
	if t == nil {
		return streamed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimPrefix(streamed, t.preamble)
}
