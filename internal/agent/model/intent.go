package model

import "strings"

// Intent is the classified category of a user request.
type Intent string

const (
	IntentPresales       Intent = "presales"
	IntentOrder          Intent = "order"
	IntentLogistics      Intent = "logistics"
	IntentAfterSales     Intent = "after_sales"
	IntentRecommendation Intent = "recommendation"
	IntentComplaint      Intent = "complaint"
	IntentGreeting       Intent = "greeting"
	// IntentGeneral marks an answer served from the response cache.
	IntentGeneral Intent = "general"
	IntentUnknown Intent = "unknown"
)

var knownIntents = map[Intent]struct{}{
	IntentPresales:       {},
	IntentOrder:          {},
	IntentLogistics:      {},
	IntentAfterSales:     {},
	IntentRecommendation: {},
	IntentComplaint:      {},
	IntentGreeting:       {},
	IntentGeneral:        {},
	IntentUnknown:        {},
}

// String returns the wire label of the intent.
func (i Intent) String() string {
	return string(i)
}

// ParseIntent normalises a label; anything outside the fixed set becomes IntentUnknown.
func ParseIntent(label string) Intent {
	v := Intent(strings.ToLower(strings.TrimSpace(label)))
	if _, ok := knownIntents[v]; ok {
		return v
	}
	return IntentUnknown
}
