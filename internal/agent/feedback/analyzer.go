// Package feedback turns low user ratings into a periodic report for operators.
package feedback

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Chative-cs-agent/server/internal/agent/repo"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

type Config struct {
	ReportDays     int           `envconfig:"FEEDBACK_REPORT_DAYS" default:"7"`
	ReportInterval time.Duration `envconfig:"FEEDBACK_REPORT_INTERVAL" default:"24h"`
}

// Source loads recent low ratings.
type Source interface {
	LowRatingFeedback(ctx context.Context, days int) ([]repo.Feedback, error)
}

const maxKeywords = 10

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Entry struct {
	ID        int64     `json:"id"`
	Rating    int       `json:"rating"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Report summarises low ratings over a window of days.
type Report struct {
	TotalCount int       `json:"total_count"`
	DateRange  DateRange `json:"date_range"`
	Keywords   []string  `json:"keywords"`
	Feedbacks  []Entry   `json:"feedbacks"`
}

type Analyzer struct {
	source Source
	cfg    Config
	now    func() time.Time
}

func NewAnalyzer(source Source, cfg Config) *Analyzer {
	if cfg.ReportDays <= 0 {
		cfg.ReportDays = 7
	}
	return &Analyzer{source: source, cfg: cfg, now: time.Now}
}

// Report builds the low rating report for the last days days; days <= 0
// uses the configured window.
func (a *Analyzer) Report(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		days = a.cfg.ReportDays
	}
	items, err := a.source.LowRatingFeedback(ctx, days)
	if err != nil {
		return nil, err
	}

	now := a.now()
	report := &Report{
		TotalCount: len(items),
		DateRange: DateRange{
			Start: now.AddDate(0, 0, -days).Format(time.DateOnly),
			End:   now.Format(time.DateOnly),
		},
		Keywords:  Keywords(items),
		Feedbacks: make([]Entry, 0, len(items)),
	}
	for _, f := range items {
		report.Feedbacks = append(report.Feedbacks, Entry{ID: f.ID, Rating: f.Rating, Content: f.Comment, CreatedAt: f.CreatedAt})
	}
	return report, nil
}

// Run logs a report every ReportInterval until ctx is done.
func (a *Analyzer) Run(ctx context.Context) {
	if a.cfg.ReportInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.Report(ctx, 0)
			if err != nil {
				logx.Error().Err(err).Msg("feedback report failed")
				continue
			}
			if report.TotalCount == 0 {
				logx.Info().Int("days", a.cfg.ReportDays).Msg("no low rated feedback")
				continue
			}
			logx.Warn().
				Int("low_ratings", report.TotalCount).
				Strs("keywords", report.Keywords).
				Str("from", report.DateRange.Start).
				Str("to", report.DateRange.End).
				Msg("low rated feedback report")
		}
	}
}

// Keywords counts whitespace separated words in the comments, skipping stop
// words and single characters, and returns the most frequent ones. Ties keep
// first-seen order.
func Keywords(items []repo.Feedback) []string {
	counts := map[string]int{}
	var order []string
	for _, f := range items {
		for _, w := range strings.Fields(f.Comment) {
			if utf8.RuneCountInString(w) < 2 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

var stopWords = toSet(
	"一个", "没有", "自己", "他们", "现在", "可以", "我们", "然而", "以及", "但是", "可是", "不过",
	"因为", "所以", "因此", "于是", "结果", "此外", "同时", "例如", "比如", "另外", "虽然", "既然",
	"如果", "假如", "倘若", "要是", "即使", "尽管", "不管", "无论", "只有", "只要", "除非", "以免",
	"以便", "之所以", "是因为", "首先", "其次", "再次", "最后", "总之", "因而", "从而", "然后", "后来",
	"接着", "最终", "终于", "到底", "究竟", "毕竟", "其实", "实际上", "事实上", "而且", "一起", "帮助",
	"提供", "支持",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
