package triage

// FactorTable maps the accepted answers for one fact to their risk weight.
type FactorTable struct {
	Fact  string
	Tiers map[string]int
}

// Weight returns the weight of value, or zero when the value is not a known tier.
func (t FactorTable) Weight(value string) int {
	return t.Tiers[normalize(value)]
}

// Max returns the highest weight the factor can contribute.
func (t FactorTable) Max() int {
	highest := 0
	for _, weight := range t.Tiers {
		if weight > highest {
			highest = weight
		}
	}
	return highest
}

var (
	medicalTable = FactorTable{Fact: FactNeedMedical, Tiers: map[string]int{
		"none":        0,
		"medications": 25,
		"injured":     45,
		"critical":    70,
	}}
	vulnerableTable = FactorTable{Fact: FactVulnerable, Tiers: map[string]int{"yes": 20, "no": 0}}
	mobilityTable   = FactorTable{Fact: FactMobilityNeeds, Tiers: map[string]int{"yes": 10, "no": 0}}
)

// categoryTables holds the category-specific factors in the order they are
// asked for. Unknown has no entry and scores zero.
var categoryTables = map[CrisisCategory][]FactorTable{
	CategoryFlood: {
		{Fact: FactWaterLevel, Tiers: map[string]int{
			"below_10cm": 5,
			"10cm_30cm":  15,
			"30cm_60cm":  30,
			"above_60cm": 45,
		}},
		{Fact: FactWaterTrend, Tiers: map[string]int{
			"none":          0,
			"stable":        0,
			"slowly_rising": 15,
			"rising_fast":   25,
		}},
		{Fact: FactFloorInfo, Tiers: map[string]int{
			"basement":    25,
			"ground":      15,
			"upper_floor": 0,
		}},
		{Fact: FactPowerOutage, Tiers: map[string]int{"yes": 20, "no": 0}},
		{Fact: FactHazardType, Tiers: map[string]int{
			"none":             0,
			"gas_smell":        25,
			"electricity_risk": 25,
			"fire":             30,
		}},
	},
	CategoryWildfire: {
		{Fact: FactFireDistance, Tiers: map[string]int{
			"none":        0,
			"visible":     10,
			"nearby":      20,
			"surrounding": 45,
		}},
		{Fact: FactSmokeInhaled, Tiers: map[string]int{
			"none":               0,
			"slightly_difficult": 15,
			"cant_breathe":       45,
		}},
		{Fact: FactVehicleAccess, Tiers: map[string]int{"no_vehicle": 20, "has_vehicle": 0}},
	},
	CategoryPowerOutage: {
		{Fact: FactHeatingCooling, Tiers: map[string]int{
			"normal":        0,
			"uncomfortable": 25,
			"dangerous":     35,
		}},
		{Fact: FactBuildingFloor, Tiers: map[string]int{
			"ground_1st": 0,
			"2_4":        10,
			"5_plus":     15,
		}},
		{Fact: FactOutageDuration, Tiers: map[string]int{
			"below_6hours": 5,
			"6h_24h":       15,
			"above_24h":    30,
		}},
	},
}

// lowestWaterLevel is the flood tier below which follow-up flood facts are skipped.
const lowestWaterLevel = "below_10cm"

// factTiers indexes every enumerated fact by name. Built once from the tables.
var factTiers = buildFactTiers()

func buildFactTiers() map[string]map[string]int {
	out := map[string]map[string]int{
		medicalTable.Fact:    medicalTable.Tiers,
		vulnerableTable.Fact: vulnerableTable.Tiers,
		mobilityTable.Fact:   mobilityTable.Tiers,
	}
	for _, tables := range categoryTables {
		for _, table := range tables {
			out[table.Fact] = table.Tiers
		}
	}
	return out
}

// GroupSizeWeight scores the number of people affected. Non-positive counts score zero.
func GroupSizeWeight(count int) int {
	switch {
	case count >= 7:
		return 20
	case count >= 4:
		return 15
	case count >= 2:
		return 10
	default:
		return 0
	}
}

// CategoryFacts returns the category-specific fact names in asking order.
func CategoryFacts(category CrisisCategory) []string {
	tables := categoryTables[category]
	out := make([]string, 0, len(tables))
	for _, table := range tables {
		out = append(out, table.Fact)
	}
	return out
}

// IsCategoryFact reports whether name belongs to any category's fact list.
func IsCategoryFact(name string) bool {
	for _, tables := range categoryTables {
		for _, table := range tables {
			if table.Fact == name {
				return true
			}
		}
	}
	return false
}

// CategoryMax is the practical ceiling of the category sub-score.
func CategoryMax(category CrisisCategory) int {
	total := 0
	for _, table := range categoryTables[category] {
		total += table.Max()
	}
	return total
}
