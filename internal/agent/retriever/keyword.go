package retriever

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
)

const defaultTopK = 3

// KeywordRetriever ranks in-memory documents by keyword overlap with the query.
type KeywordRetriever struct {
	docs []*schema.Document
}

var _ retriever.Retriever = (*KeywordRetriever)(nil)

func NewKeywordRetriever(docs []*schema.Document) *KeywordRetriever {
	return &KeywordRetriever{docs: docs}
}

// Retrieve returns matching documents ordered by descending score, ties
// broken by id. Documents that match nothing are never returned.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := defaultTopK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	if options.TopK != nil {
		topK = *options.TopK
	}
	threshold := 0.0
	if options.ScoreThreshold != nil {
		threshold = *options.ScoreThreshold
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || topK <= 0 {
		return []*schema.Document{}, nil
	}

	hits := make([]*schema.Document, 0, len(r.docs))
	for _, d := range r.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := scoreDocument(q, d)
		if score <= 0 || score < threshold {
			continue
		}
		hit := &schema.Document{ID: d.ID, Content: d.Content, MetaData: cloneMeta(d.MetaData)}
		hits = append(hits, hit.WithScore(score))
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score() != hits[j].Score() {
			return hits[i].Score() > hits[j].Score()
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// scoreDocument is the share of a document's keywords found in the query,
// with a bonus when the title itself appears.
func scoreDocument(q string, d *schema.Document) float64 {
	keywords, _ := d.MetaData[MetaKeywords].([]string)
	matched := 0
	for _, k := range keywords {
		if strings.Contains(q, k) {
			matched++
		}
	}

	score := 0.0
	if len(keywords) > 0 && matched > 0 {
		score = 0.5 + 0.5*float64(matched)/float64(len(keywords))
	}
	if title, _ := d.MetaData[MetaTitle].(string); title != "" && strings.Contains(q, strings.ToLower(title)) {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}
	return score
}

func cloneMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
