package triage

import (
	"strconv"
	"strings"
)

// Fact names collected during triage.
const (
	FactNeedMedical    = "need_medical"
	FactLocation       = "location"
	FactPersonCount    = "person_count"
	FactVulnerable     = "vulnerable_group"
	FactMobilityNeeds  = "mobility_needs"
	FactCrisisType     = "crisis_type"
	FactWaterLevel     = "water_level"
	FactWaterTrend     = "water_trend"
	FactFloorInfo      = "floor_info"
	FactPowerOutage    = "power_outage"
	FactHazardType     = "hazard_type"
	FactFireDistance   = "fire_distance"
	FactSmokeInhaled   = "smoke_inhalation"
	FactVehicleAccess  = "vehicle_access"
	FactHeatingCooling = "heating_cooling_risk"
	FactBuildingFloor  = "building_floor"
	FactOutageDuration = "duration_estimate"
)

// UserStatus is how the person describes their own situation.
type UserStatus string

const (
	StatusUnknown   UserStatus = ""
	StatusEmergency UserStatus = "emergency"
	StatusTrapped   UserStatus = "trapped_safe"
	StatusSafe      UserStatus = "safe"
)

// ParseUserStatus accepts the stored status names; anything else is unknown.
func ParseUserStatus(raw string) UserStatus {
	switch UserStatus(normalize(raw)) {
	case StatusEmergency:
		return StatusEmergency
	case StatusTrapped:
		return StatusTrapped
	case StatusSafe:
		return StatusSafe
	default:
		return StatusUnknown
	}
}

// UserStatusFromIntent resolves report_* intents to a user status.
func UserStatusFromIntent(intent string) UserStatus {
	switch normalize(intent) {
	case "report_emergency":
		return StatusEmergency
	case "report_trapped":
		return StatusTrapped
	case "report_safe":
		return StatusSafe
	default:
		return StatusUnknown
	}
}

// State is the per-conversation triage state. It is owned by a single
// conversation and mutated once per turn.
type State struct {
	Facts      map[string]string `json:"facts"`
	Category   CrisisCategory    `json:"crisis_type"`
	UserStatus UserStatus        `json:"user_status,omitempty"`
	LastText   string            `json:"last_text,omitempty"`
	Channel    string            `json:"channel,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Facts: make(map[string]string)}
}

// Fact returns the trimmed value of a fact and whether it is non-empty.
// crisis_type is answered from the category variant.
func (s *State) Fact(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	if name == FactCrisisType {
		if !s.Category.Known() {
			return "", false
		}
		return s.Category.String(), true
	}
	value := strings.TrimSpace(s.Facts[name])
	return value, value != ""
}

// Set stores a fact. An empty value clears it. Setting crisis_type updates
// the category variant instead of the facts map.
func (s *State) Set(name, value string) {
	if s.Facts == nil {
		s.Facts = make(map[string]string)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if name == FactCrisisType {
		s.Category = ParseCategory(value)
		return
	}
	value = strings.TrimSpace(value)
	if value == "" {
		delete(s.Facts, name)
		return
	}
	s.Facts[name] = value
}

// PersonCount parses person_count. ok is false for absent, non-numeric or
// non-positive values.
func (s *State) PersonCount() (int, bool) {
	raw, ok := s.Fact(FactPersonCount)
	if !ok {
		return 0, false
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count <= 0 {
		return 0, false
	}
	return count, true
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	out := *s
	out.Facts = make(map[string]string, len(s.Facts))
	for k, v := range s.Facts {
		out.Facts[k] = v
	}
	return &out
}

// Usable reports whether a fact holds a value the triage rules can act on.
// Enumerated facts must match a known tier and person_count must be a positive
// integer; free-text facts only need to be present.
func (s *State) Usable(name string) bool {
	value, ok := s.Fact(name)
	if !ok {
		return false
	}
	switch name {
	case FactPersonCount:
		_, ok := s.PersonCount()
		return ok
	case FactCrisisType:
		return true
	}
	if tiers, enumerated := factTiers[name]; enumerated {
		_, known := tiers[normalize(value)]
		return known
	}
	return true
}
