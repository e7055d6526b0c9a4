package triage

// Level is the coarse risk classification.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Classification cut points over the total score.
const (
	HighRiskThreshold   = 70
	MediumRiskThreshold = 45
)

// Escalates reports whether the level warrants a human operator.
func (l Level) Escalates() bool {
	return l == LevelHigh || l == LevelMedium
}

// Breakdown lists the independently bounded sub-scores.
type Breakdown struct {
	Medical       int `json:"medical"`
	GroupSize     int `json:"group_size"`
	Vulnerability int `json:"vulnerability"`
	Mobility      int `json:"mobility"`
	Category      int `json:"category"`
}

// Total is the plain sum of the sub-scores.
func (b Breakdown) Total() int {
	return b.Medical + b.GroupSize + b.Vulnerability + b.Mobility + b.Category
}

// Assessment is the derived risk for one conversation state.
type Assessment struct {
	Score     int       `json:"score"`
	Level     Level     `json:"level"`
	Breakdown Breakdown `json:"breakdown"`
}

// Classify maps a score to its level.
func Classify(score int) Level {
	switch {
	case score >= HighRiskThreshold:
		return LevelHigh
	case score >= MediumRiskThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Score computes the risk assessment. Missing or unrecognised answers
// contribute zero; it never fails.
func Score(state *State) Assessment {
	var b Breakdown
	if state != nil {
		b.Medical = factorWeight(state, medicalTable)
		if count, ok := state.PersonCount(); ok {
			b.GroupSize = GroupSizeWeight(count)
		}
		b.Vulnerability = factorWeight(state, vulnerableTable)
		b.Mobility = factorWeight(state, mobilityTable)
		for _, table := range categoryTables[state.Category] {
			b.Category += factorWeight(state, table)
		}
	}
	total := b.Total()
	return Assessment{Score: total, Level: Classify(total), Breakdown: b}
}

func factorWeight(state *State, table FactorTable) int {
	value, ok := state.Fact(table.Fact)
	if !ok {
		return 0
	}
	return table.Weight(value)
}
