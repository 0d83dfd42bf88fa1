package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-cs-agent/server/internal/agent/repo"
)

type fakeSource struct {
	items []repo.Feedback
	err   error
	days  int
}

func (f *fakeSource) LowRatingFeedback(_ context.Context, days int) ([]repo.Feedback, error) {
	f.days = days
	return f.items, f.err
}

func TestKeywords(t *testing.T) {
	t.Run("Should rank words by frequency and skip stop words", func(t *testing.T) {
		items := []repo.Feedback{
			{Comment: "回答 太慢 但是 没用"},
			{Comment: "太慢 了"},
			{Comment: "没用 太慢"},
		}
		assert.Equal(t, []string{"太慢", "没用", "回答"}, Keywords(items))
	})

	t.Run("Should keep at most ten keywords", func(t *testing.T) {
		items := []repo.Feedback{{Comment: "aa bb cc dd ee ff gg hh ii jj kk ll"}}
		got := Keywords(items)
		assert.Len(t, got, maxKeywords)
		assert.Equal(t, "aa", got[0])
	})
}

func TestAnalyzer_Report(t *testing.T) {
	ctx := context.Background()

	t.Run("Should summarise recent low ratings", func(t *testing.T) {
		created := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
		src := &fakeSource{items: []repo.Feedback{
			{ID: 2, Rating: 1, Comment: "答非所问 答非所问", CreatedAt: created},
			{ID: 1, Rating: 2, Comment: "太慢"},
		}}
		a := NewAnalyzer(src, Config{ReportDays: 7})
		a.now = func() time.Time { return time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC) }

		report, err := a.Report(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 7, src.days)
		assert.Equal(t, 2, report.TotalCount)
		assert.Equal(t, DateRange{Start: "2024-05-01", End: "2024-05-08"}, report.DateRange)
		assert.Equal(t, []string{"答非所问", "太慢"}, report.Keywords)
		require.Len(t, report.Feedbacks, 2)
		assert.Equal(t, Entry{ID: 2, Rating: 1, Content: "答非所问 答非所问", CreatedAt: created}, report.Feedbacks[0])
	})

	t.Run("Should honour an explicit window", func(t *testing.T) {
		src := &fakeSource{}
		report, err := NewAnalyzer(src, Config{}).Report(ctx, 30)
		require.NoError(t, err)
		assert.Equal(t, 30, src.days)
		assert.Equal(t, 0, report.TotalCount)
		assert.NotNil(t, report.Feedbacks)
	})

	t.Run("Should pass store errors through", func(t *testing.T) {
		boom := errors.New("db down")
		_, err := NewAnalyzer(&fakeSource{err: boom}, Config{}).Report(ctx, 7)
		assert.ErrorIs(t, err, boom)
	})
}
