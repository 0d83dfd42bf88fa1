// Package retriever wraps knowledge retrieval behind a search port that
// returns ranked snippets with source attribution.
package retriever

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"golang.org/x/sync/singleflight"

	"github.com/Chative-cs-agent/server/internal/agent/cache"
	"github.com/Chative-cs-agent/server/internal/agent/common"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// Snippet is one ranked piece of retrieved knowledge.
type Snippet struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Reference converts the snippet to response attribution.
func (s Snippet) Reference() model.Reference {
	return model.Reference{Source: s.Source, ContentPreview: common.Preview(s.Content, 100), Score: s.Score}
}

// Searcher returns ranked snippets. An empty result is not an error.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Service adapts any eino retriever to Searcher.
type Service struct {
	r retriever.Retriever
}

func NewService(r retriever.Retriever) *Service {
	return &Service{r: r}
}

func (s *Service) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	docs, err := s.r.Retrieve(ctx, query, retriever.WithTopK(limit))
	if err != nil {
		return nil, errx.WrapUpstream(err)
	}
	out := make([]Snippet, 0, len(docs))
	for _, d := range docs {
		if d == nil || d.Content == "" {
			continue
		}
		src, _ := d.MetaData[MetaSource].(string)
		if src == "" {
			src = d.ID
		}
		out = append(out, Snippet{Content: d.Content, Source: src, Score: d.Score()})
	}
	return out, nil
}

// Cached serves repeated queries from Redis. Only non-empty results are
// stored so that new knowledge is picked up without waiting for expiry.
// Concurrent misses for the same query share one inner search.
type Cached struct {
	inner     Searcher
	gw        *cache.Gateway
	namespace string
	ttl       time.Duration
	group     singleflight.Group
}

func NewCached(inner Searcher, gw *cache.Gateway, namespace string, ttl time.Duration) *Cached {
	return &Cached{inner: inner, gw: gw, namespace: namespace, ttl: ttl}
}

func (c *Cached) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	// results depend on limit, so it is part of both keys
	key := fmt.Sprintf("%d|%s", limit, query)

	var cached []Snippet
	ok, err := c.gw.GetJSON(ctx, c.namespace, key, &cached)
	if err != nil {
		logx.Warn().Err(err).Str("namespace", c.namespace).Msg("knowledge cache read failed")
	}
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(c.namespace+"|"+key, func() (any, error) {
		snippets, err := c.inner.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if len(snippets) > 0 {
			if err := c.gw.SetJSON(ctx, c.namespace, key, snippets, c.ttl); err != nil {
				logx.Warn().Err(err).Str("namespace", c.namespace).Msg("knowledge cache write failed")
			}
		}
		return snippets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Snippet), nil
}
