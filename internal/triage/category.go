package triage

import (
	"encoding/json"
	"strings"
)

// CrisisCategory is the declared emergency type. It is resolved once at the
// conversation boundary; scoring and form logic only ever see the variant.
type CrisisCategory int

const (
	CategoryUnknown CrisisCategory = iota
	CategoryFlood
	CategoryWildfire
	CategoryPowerOutage
)

var categoryNames = map[CrisisCategory]string{
	CategoryUnknown:     "none",
	CategoryFlood:       "flood",
	CategoryWildfire:    "wildfire",
	CategoryPowerOutage: "power_outage",
}

// String returns the wire name used in facts, JSON and the handoff table.
func (c CrisisCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[CategoryUnknown]
}

// Known reports whether the category is one of the scored crisis types.
func (c CrisisCategory) Known() bool {
	return c == CategoryFlood || c == CategoryWildfire || c == CategoryPowerOutage
}

// ParseCategory maps a stored or user-supplied category name onto the variant.
// Anything unrecognised is CategoryUnknown.
func ParseCategory(raw string) CrisisCategory {
	switch normalize(raw) {
	case "flood":
		return CategoryFlood
	case "wildfire", "fire":
		return CategoryWildfire
	case "power_outage", "outage":
		return CategoryPowerOutage
	default:
		return CategoryUnknown
	}
}

// CategoryFromIntent resolves NLU intent names (report_flood, ...) to a category.
func CategoryFromIntent(intent string) CrisisCategory {
	switch normalize(intent) {
	case "report_flood":
		return CategoryFlood
	case "report_wildfire":
		return CategoryWildfire
	case "report_outage":
		return CategoryPowerOutage
	default:
		return CategoryUnknown
	}
}

func (c CrisisCategory) MarshalJSON() ([]byte, error) {
	if !c.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

func (c *CrisisCategory) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*c = CategoryUnknown
		return nil
	}
	*c = ParseCategory(*raw)
	return nil
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
