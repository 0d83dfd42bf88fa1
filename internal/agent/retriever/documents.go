package retriever

import (
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino/schema"
	"gopkg.in/yaml.v3"
)

// Document categories in the knowledge file.
const (
	CategoryPolicy  = "policy"
	CategoryProduct = "product"
)

// Metadata keys set on loaded documents.
const (
	MetaSource   = "source"
	MetaCategory = "category"
	MetaKeywords = "keywords"
	MetaTitle    = "title"
)

type knowledgeFile struct {
	Documents []knowledgeEntry `yaml:"documents"`
}

type knowledgeEntry struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Title    string   `yaml:"title"`
	Content  string   `yaml:"content"`
	Keywords []string `yaml:"keywords"`
}

// LoadDocuments reads a YAML knowledge file.
func LoadDocuments(path string) ([]*schema.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file: %w", err)
	}
	return ParseDocuments(b, path)
}

// ParseDocuments decodes knowledge YAML. source names the origin for attribution.
func ParseDocuments(data []byte, source string) ([]*schema.Document, error) {
	var kf knowledgeFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse knowledge file: %w", err)
	}

	docs := make([]*schema.Document, 0, len(kf.Documents))
	seen := make(map[string]struct{}, len(kf.Documents))
	for i, e := range kf.Documents {
		if strings.TrimSpace(e.Content) == "" {
			return nil, fmt.Errorf("knowledge entry %d: empty content", i)
		}
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = fmt.Sprintf("doc-%d", i+1)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("knowledge entry %d: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}

		category := strings.ToLower(strings.TrimSpace(e.Category))
		if category == "" {
			category = CategoryPolicy
		}
		title := strings.TrimSpace(e.Title)
		src := title
		if src == "" {
			src = source + "#" + id
		}

		keywords := make([]string, 0, len(e.Keywords))
		for _, k := range e.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}

		docs = append(docs, &schema.Document{
			ID:      id,
			Content: strings.TrimSpace(e.Content),
			MetaData: map[string]any{
				MetaSource:   src,
				MetaCategory: category,
				MetaKeywords: keywords,
				MetaTitle:    title,
			},
		})
	}
	return docs, nil
}

// FilterCategory returns the documents of one category.
func FilterCategory(docs []*schema.Document, category string) []*schema.Document {
	out := make([]*schema.Document, 0, len(docs))
	for _, d := range docs {
		if c, _ := d.MetaData[MetaCategory].(string); c == category {
			out = append(out, d)
		}
	}
	return out
}
