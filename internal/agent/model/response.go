package model

// RoutingMethod tells which classifier produced a RouteDecision.
type RoutingMethod string

const (
	RoutingModel RoutingMethod = "model"
	RoutingRule  RoutingMethod = "rule"
)

// Field names used in RouteDecision.ExtractedFields.
const (
	FieldOrderID        = "order_id"
	FieldTrackingNumber = "tracking_number"
	FieldProductType    = "product_type"
)

// RouteDecision is the router's verdict for one message.
type RouteDecision struct {
	Intent          Intent            `json:"intent"`
	ExtractedFields map[string]string `json:"extracted_fields,omitempty"`
	RoutingMethod   RoutingMethod     `json:"routing_method"`
	Success         bool              `json:"success"`

	// Confidence and Reasoning are informational only.
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Elapsed    float64 `json:"processing_time"`
}

// Field returns an extracted field or "".
func (d RouteDecision) Field(name string) string {
	if d.ExtractedFields == nil {
		return ""
	}
	return d.ExtractedFields[name]
}

// Context flattens the decision into response context metadata.
func (d RouteDecision) Context() map[string]any {
	return map[string]any{
		"intent":          d.Intent.String(),
		"routing_method":  string(d.RoutingMethod),
		"extracted_info":  d.ExtractedFields,
		"confidence":      d.Confidence,
		"reasoning":       d.Reasoning,
		"processing_time": d.Elapsed,
	}
}

// Reference points at a retrieved knowledge snippet.
type Reference struct {
	Source         string  `json:"source"`
	ContentPreview string  `json:"content_preview"`
	Score          float64 `json:"score,omitempty"`
}

// AgentResponse is the normalised output of a handler or the coordinator.
// Only Content is guaranteed to be meaningful to the transport layer.
type AgentResponse struct {
	Success        bool           `json:"success"`
	Content        string         `json:"content"`
	Intent         Intent         `json:"intent"`
	Sources        []Reference    `json:"sources,omitempty"`
	StructuredInfo map[string]any `json:"structured_info,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// WithContext sets a context key, allocating the map on first use.
func (r *AgentResponse) WithContext(key string, value any) *AgentResponse {
	if r.Context == nil {
		r.Context = map[string]any{}
	}
	r.Context[key] = value
	return r
}

// ContextFloat reads a numeric context value, returning 0 when absent.
func (r *AgentResponse) ContextFloat(key string) float64 {
	if r == nil || r.Context == nil {
		return 0
	}
	switch v := r.Context[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// ContextBool reads a boolean context value, returning false when absent.
func (r *AgentResponse) ContextBool(key string) bool {
	if r == nil || r.Context == nil {
		return false
	}
	v, _ := r.Context[key].(bool)
	return v
}
