package triage

// Flow selects the interview policy for a conversation.
type Flow int

const (
	// FlowNone asks nothing and never escalates.
	FlowNone Flow = iota
	// FlowEmergency is the initial medical triage.
	FlowEmergency
	// FlowTrapped is the detailed assessment for people who cannot leave.
	FlowTrapped
)

func (f Flow) String() string {
	switch f {
	case FlowEmergency:
		return "emergency"
	case FlowTrapped:
		return "trapped"
	default:
		return "none"
	}
}

// FlowFor picks the flow from the user's reported status.
func FlowFor(status UserStatus) Flow {
	switch status {
	case StatusEmergency:
		return FlowEmergency
	case StatusTrapped:
		return FlowTrapped
	default:
		return FlowNone
	}
}

// RequiredSlots returns every fact the flow needs given the current answers,
// in asking order, including facts that are already filled.
func RequiredSlots(flow Flow, state *State) []string {
	if state == nil {
		state = NewState()
	}
	switch flow {
	case FlowEmergency:
		return emergencySlots(state)
	case FlowTrapped:
		return trappedSlots(state)
	default:
		return nil
	}
}

// NextRequired returns the facts still needed, in order. An empty result means
// the interview is complete.
func NextRequired(flow Flow, state *State) []string {
	required := RequiredSlots(flow, state)
	pending := make([]string, 0, len(required))
	for _, name := range required {
		if !state.Usable(name) {
			pending = append(pending, name)
		}
	}
	return pending
}

// Next returns the first fact to ask for, or "" when nothing is pending.
func Next(flow Flow, state *State) string {
	pending := NextRequired(flow, state)
	if len(pending) == 0 {
		return ""
	}
	return pending[0]
}

// Complete reports whether the flow has nothing left to ask.
func Complete(flow Flow, state *State) bool {
	return len(NextRequired(flow, state)) == 0
}

func emergencySlots(state *State) []string {
	if !state.Usable(FactNeedMedical) {
		return []string{FactNeedMedical}
	}
	medical, _ := state.Fact(FactNeedMedical)
	switch normalize(medical) {
	case "critical":
		return []string{}
	case "none", "medications":
		slots := []string{FactNeedMedical, FactLocation}
		if _, ok := state.Fact(FactLocation); ok {
			slots = append(slots, FactPersonCount)
		}
		return slots
	case "injured":
		return []string{FactNeedMedical, FactLocation}
	default:
		return []string{FactNeedMedical}
	}
}

func trappedSlots(state *State) []string {
	slots := []string{FactLocation, FactNeedMedical, FactPersonCount}
	if Score(state).Score >= HighRiskThreshold {
		return []string{}
	}

	if count, ok := state.PersonCount(); ok && count > 1 {
		slots = append(slots, FactVulnerable)
		if vulnerable, _ := state.Fact(FactVulnerable); normalize(vulnerable) == "yes" {
			slots = append(slots, FactMobilityNeeds)
		}
	}

	if !state.Category.Known() {
		return append(slots, FactCrisisType)
	}

	if state.Category == CategoryFlood {
		return append(slots, floodSlots(state)...)
	}
	return append(slots, CategoryFacts(state.Category)...)
}

func floodSlots(state *State) []string {
	slots := []string{FactWaterLevel}
	if state.Usable(FactWaterLevel) {
		level, _ := state.Fact(FactWaterLevel)
		if normalize(level) != lowestWaterLevel {
			slots = append(slots, FactWaterTrend, FactFloorInfo, FactPowerOutage)
		}
	}
	return append(slots, FactHazardType)
}
