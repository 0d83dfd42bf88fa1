package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// LowRatingThreshold is the first rating that is not considered low.
const LowRatingThreshold = 3

// Feedback is a user's rating of one assistant message.
type Feedback struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	SessionID string    `json:"session_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// MessageContent is the rated message, filled in by LowRatingFeedback.
	MessageContent string `json:"message_content,omitempty"`
}

// SessionSummary describes one session of the durable transcript.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	LastMessage  string    `json:"last_message"`
}

// SaveFeedback stores a rating and returns its id. Ratings are validated by
// the caller.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, f Feedback) (int64, error) {
	var comment any
	if f.Comment != "" {
		comment = f.Comment
	}
	query, args, err := sq.Insert("feedback").
		Columns("message_id", "session_id", "rating", "comment", "created_at").
		Values(f.MessageID, f.SessionID, f.Rating, comment, s.now().UTC().UnixNano()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert feedback query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logx.Error().Err(err).Str("session_id", f.SessionID).Int64("message_id", f.MessageID).Msg("failed to save feedback")
		return 0, errx.WrapStore(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errx.WrapStore(err)
	}
	return id, nil
}

// LowRatingFeedback returns ratings below LowRatingThreshold from the last
// days days, newest first, with the rated message attached when it exists.
func (s *SQLiteStore) LowRatingFeedback(ctx context.Context, days int) ([]Feedback, error) {
	since := s.now().AddDate(0, 0, -days).UTC().UnixNano()
	query, args, err := sq.Select(
		"f.id", "f.message_id", "f.session_id", "f.rating", "f.comment", "f.created_at", "COALESCE(m.content, '')",
	).
		From("feedback f").
		LeftJoin("messages m ON m.id = f.message_id").
		Where(sq.Lt{"f.rating": LowRatingThreshold}).
		Where(sq.GtOrEq{"f.created_at": since}).
		OrderBy("f.created_at DESC", "f.id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build low rating query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var (
			f       Feedback
			comment sql.NullString
			created int64
		)
		if err := rows.Scan(&f.ID, &f.MessageID, &f.SessionID, &f.Rating, &comment, &created, &f.MessageContent); err != nil {
			return nil, errx.WrapStore(err)
		}
		f.Comment = comment.String
		f.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return out, nil
}

// ListSessions summarises transcript sessions, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	builder := sq.Select(
		"m.session_id", "COUNT(*)", "MIN(m.created_at)", "MAX(m.created_at)",
		"(SELECT l.content FROM messages l WHERE l.session_id = m.session_id ORDER BY l.id DESC LIMIT 1)",
	).
		From("messages m").
		GroupBy("m.session_id").
		OrderBy("MAX(m.id) DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum           SessionSummary
			first, latest int64
			last          sql.NullString
		)
		if err := rows.Scan(&sum.SessionID, &sum.MessageCount, &first, &latest, &last); err != nil {
			return nil, errx.WrapStore(err)
		}
		sum.CreatedAt = time.Unix(0, first).UTC()
		sum.LastActivity = time.Unix(0, latest).UTC()
		sum.LastMessage = last.String
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return out, nil
}
