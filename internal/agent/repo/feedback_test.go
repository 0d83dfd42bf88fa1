package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Feedback(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return recent low ratings with the rated message", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.AppendMessage(ctx, "s1", "assistant", "七天无理由退货", nil))
		rows, err := s.ListMessages(ctx, "s1", 1)
		require.NoError(t, err)
		msgID := rows[0].ID

		_, err = s.SaveFeedback(ctx, Feedback{MessageID: msgID, SessionID: "s1", Rating: 1, Comment: "回答 不对"})
		require.NoError(t, err)
		_, err = s.SaveFeedback(ctx, Feedback{MessageID: msgID, SessionID: "s1", Rating: 5})
		require.NoError(t, err)
		id, err := s.SaveFeedback(ctx, Feedback{MessageID: 999, SessionID: "s2", Rating: 2})
		require.NoError(t, err)

		low, err := s.LowRatingFeedback(ctx, 7)
		require.NoError(t, err)
		require.Len(t, low, 2)
		assert.Equal(t, id, low[0].ID)
		assert.Equal(t, "", low[0].MessageContent)
		assert.Equal(t, 1, low[1].Rating)
		assert.Equal(t, "回答 不对", low[1].Comment)
		assert.Equal(t, "七天无理由退货", low[1].MessageContent)
	})

	t.Run("Should leave out ratings older than the window", func(t *testing.T) {
		s := newTestStore(t)
		now := time.Now()
		s.now = func() time.Time { return now.AddDate(0, 0, -10) }
		_, err := s.SaveFeedback(ctx, Feedback{MessageID: 1, SessionID: "s1", Rating: 1})
		require.NoError(t, err)
		s.now = func() time.Time { return now }
		_, err = s.SaveFeedback(ctx, Feedback{MessageID: 2, SessionID: "s1", Rating: 2})
		require.NoError(t, err)

		low, err := s.LowRatingFeedback(ctx, 7)
		require.NoError(t, err)
		require.Len(t, low, 1)
		assert.Equal(t, int64(2), low[0].MessageID)

		all, err := s.LowRatingFeedback(ctx, 30)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("Should summarise sessions by latest activity", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.AppendMessage(ctx, "s1", "user", "你好", nil))
		require.NoError(t, s.AppendMessage(ctx, "s2", "user", "退货", nil))
		require.NoError(t, s.AppendMessage(ctx, "s1", "assistant", "您好", nil))

		sessions, err := s.ListSessions(ctx, 10)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "s1", sessions[0].SessionID)
		assert.Equal(t, 2, sessions[0].MessageCount)
		assert.Equal(t, "您好", sessions[0].LastMessage)
		assert.False(t, sessions[0].LastActivity.Before(sessions[0].CreatedAt))
		assert.Equal(t, "s2", sessions[1].SessionID)
	})

	t.Run("Should honour the limit", func(t *testing.T) {
		s := newTestStore(t)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.AppendMessage(ctx, id, "user", "hi", nil))
		}
		sessions, err := s.ListSessions(ctx, 2)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, "c", sessions[0].SessionID)
	})
}
