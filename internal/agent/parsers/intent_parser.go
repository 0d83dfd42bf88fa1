package parsers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Chative-cs-agent/server/internal/agent/model"
	errx "github.com/Chative-cs-agent/server/internal/core/error"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 16 * 1024
	maxFieldLen   = 128
	maxReasonLen  = 512
	maxErrSnippet = 200
)

var knownFields = []string{model.FieldOrderID, model.FieldTrackingNumber, model.FieldProductType}

type rawIntent struct {
	Intent        string         `json:"intent"`
	Confidence    any            `json:"confidence"`
	ExtractedInfo map[string]any `json:"extracted_info"`
	Reasoning     string         `json:"reasoning"`
}

// ParseIntentResponse turns the classifier output into a RouteDecision.
// Labels outside the intent set become unknown; empty or null fields are dropped.
func ParseIntentResponse(content string) (decision *model.RouteDecision, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "intent_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("intent parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			decision = nil
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}

	body, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	var raw rawIntent
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("intent json: %w (snippet=%q)", err, snippet(body))
	}
	if strings.TrimSpace(raw.Intent) == "" {
		return nil, fmt.Errorf("intent json: missing intent (snippet=%q)", snippet(body))
	}

	decision = &model.RouteDecision{
		Intent:          model.ParseIntent(raw.Intent),
		ExtractedFields: map[string]string{},
		RoutingMethod:   model.RoutingModel,
		Success:         true,
		Confidence:      parseConfidence(raw.Confidence),
		Reasoning:       truncate(strings.TrimSpace(raw.Reasoning), maxReasonLen),
	}
	for _, name := range knownFields {
		if v := fieldString(raw.ExtractedInfo[name]); v != "" {
			decision.ExtractedFields[name] = truncate(v, maxFieldLen)
		}
	}
	return decision, nil
}

// extractJSONObject strips markdown fences and returns the outermost {...}.
func extractJSONObject(content string) (string, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("intent json: no object found (snippet=%q)", snippet(content))
	}
	return s[start : end+1], nil
}

func parseConfidence(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		if _, err := fmt.Sscanf(strings.TrimSpace(x), "%g", &f); err != nil {
			return 0
		}
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}

func fieldString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(x)
		switch strings.ToLower(s) {
		case "null", "none", "空", "n/a":
			return ""
		}
		return s
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", x))
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// back off to a rune boundary
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func snippet(s string) string {
	return truncate(s, maxErrSnippet)
}
