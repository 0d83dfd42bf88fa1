package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Chative-cs-agent/server/internal/agent/feedback"
	"github.com/Chative-cs-agent/server/internal/agent/repo"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// FeedbackStore persists message ratings.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, f repo.Feedback) (int64, error)
}

// FeedbackReports builds the low rating report.
type FeedbackReports interface {
	Report(ctx context.Context, days int) (*feedback.Report, error)
}

const (
	minRating = 1
	maxRating = 5
)

type feedbackRequest struct {
	MessageID *int64 `json:"message_id"`
	SessionID string `json:"session_id"`
	Rating    *int   `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Feedback == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "feedback disabled"))
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errx.New(err, http.StatusBadRequest, "invalid JSON body"))
		return
	}
	if req.MessageID == nil || *req.MessageID <= 0 || strings.TrimSpace(req.SessionID) == "" || req.Rating == nil {
		writeError(w, errx.New(nil, http.StatusBadRequest, "message_id, session_id and rating are required"))
		return
	}
	if *req.Rating < minRating || *req.Rating > maxRating {
		writeError(w, errx.New(nil, http.StatusBadRequest, "rating must be between 1 and 5"))
		return
	}

	id, err := s.deps.Feedback.SaveFeedback(r.Context(), repo.Feedback{
		MessageID: *req.MessageID,
		SessionID: req.SessionID,
		Rating:    *req.Rating,
		Comment:   strings.TrimSpace(req.Comment),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	logx.Info().Str("session_id", req.SessionID).Int64("message_id", *req.MessageID).Int("rating", *req.Rating).Msg("feedback submitted")
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "success": true, "message": "feedback submitted"})
}

func (s *Server) handleFeedbackReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.FeedbackReports == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "feedback reports disabled"))
		return
	}
	days, ok := positiveQuery(w, r, "days", 0)
	if !ok {
		return
	}
	report, err := s.deps.FeedbackReports.Report(r.Context(), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcripts == nil {
		writeError(w, errx.New(nil, http.StatusNotImplemented, "transcript store disabled"))
		return
	}
	limit, ok := positiveQuery(w, r, "limit", 20)
	if !ok {
		return
	}
	sessions, err := s.deps.Transcripts.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []repo.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// positiveQuery reads an optional positive integer parameter, writing a 400
// when it is malformed.
func positiveQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeError(w, errx.New(err, http.StatusBadRequest, name+" must be a positive integer"))
		return 0, false
	}
	return n, true
}
