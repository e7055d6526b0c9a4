package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowFor(t *testing.T) {
	assert.Equal(t, FlowEmergency, FlowFor(StatusEmergency))
	assert.Equal(t, FlowTrapped, FlowFor(StatusTrapped))
	assert.Equal(t, FlowNone, FlowFor(StatusSafe))
	assert.Equal(t, FlowNone, FlowFor(StatusUnknown))
	assert.Empty(t, NextRequired(FlowNone, NewState()))
}

func TestEmergencyFlow(t *testing.T) {
	cases := []struct {
		name     string
		facts    map[string]string
		required []string
		pending  []string
	}{
		{"medical unset", nil, []string{FactNeedMedical}, []string{FactNeedMedical}},
		{"medical unrecognised", map[string]string{FactNeedMedical: "dunno"}, []string{FactNeedMedical}, []string{FactNeedMedical}},
		{"critical", map[string]string{FactNeedMedical: "critical"}, []string{}, []string{}},
		{"none without location", map[string]string{FactNeedMedical: "none"},
			[]string{FactNeedMedical, FactLocation}, []string{FactLocation}},
		{"medications with location", map[string]string{FactNeedMedical: "medications", FactLocation: "Köln"},
			[]string{FactNeedMedical, FactLocation, FactPersonCount}, []string{FactPersonCount}},
		{"medications with bad count", map[string]string{FactNeedMedical: "medications", FactLocation: "Köln", FactPersonCount: "a few"},
			[]string{FactNeedMedical, FactLocation, FactPersonCount}, []string{FactPersonCount}},
		{"medications complete", map[string]string{FactNeedMedical: "medications", FactLocation: "Köln", FactPersonCount: "2"},
			[]string{FactNeedMedical, FactLocation, FactPersonCount}, []string{}},
		{"injured without location", map[string]string{FactNeedMedical: "injured"},
			[]string{FactNeedMedical, FactLocation}, []string{FactLocation}},
		{"injured in berlin", map[string]string{FactNeedMedical: "injured", FactLocation: "Berlin"},
			[]string{FactNeedMedical, FactLocation}, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := stateWith(CategoryUnknown, tc.facts)
			assert.Equal(t, tc.required, RequiredSlots(FlowEmergency, state))
			assert.Equal(t, tc.pending, NextRequired(FlowEmergency, state))
		})
	}
}

func TestEmergencyFlow_CriticalIgnoresEverythingElse(t *testing.T) {
	state := stateWith(CategoryFlood, map[string]string{
		FactNeedMedical: "critical",
		FactPersonCount: "garbage",
		FactWaterLevel:  "above_60cm",
	})
	assert.Empty(t, NextRequired(FlowEmergency, state))
	assert.True(t, Complete(FlowEmergency, state))
	assert.Equal(t, "", Next(FlowEmergency, state))
}

func TestEmergencyFlow_InjuredEndToEnd(t *testing.T) {
	state := stateWith(CategoryUnknown, map[string]string{FactNeedMedical: "injured", FactLocation: "Berlin"})

	assessment := Score(state)
	assert.Equal(t, 45, assessment.Score)
	assert.Equal(t, LevelMedium, assessment.Level)
	assert.Empty(t, NextRequired(FlowEmergency, state))
	assert.True(t, Complete(FlowEmergency, state) && assessment.Level.Escalates())
}

func TestTrappedFlow_Baseline(t *testing.T) {
	state := NewState()
	assert.Equal(t,
		[]string{FactLocation, FactNeedMedical, FactPersonCount, FactCrisisType},
		NextRequired(FlowTrapped, state))
	assert.Equal(t, FactLocation, Next(FlowTrapped, state))
}

func TestTrappedFlow_EarlyExitOnPartialScore(t *testing.T) {
	state := stateWith(CategoryUnknown, map[string]string{
		FactNeedMedical: "injured",
		FactPersonCount: "8",
		FactVulnerable:  "yes",
	})
	assert.GreaterOrEqual(t, Score(state).Score, HighRiskThreshold)
	assert.Empty(t, RequiredSlots(FlowTrapped, state))
	assert.Empty(t, NextRequired(FlowTrapped, state))

	flood := stateWith(CategoryFlood, map[string]string{FactNeedMedical: "critical"})
	assert.Empty(t, NextRequired(FlowTrapped, flood), "category facts unset but already high")
}

func TestTrappedFlow_GroupFollowUps(t *testing.T) {
	single := stateWith(CategoryUnknown, map[string]string{FactLocation: "Bonn", FactNeedMedical: "none", FactPersonCount: "1"})
	assert.Equal(t, []string{FactCrisisType}, NextRequired(FlowTrapped, single))

	group := stateWith(CategoryUnknown, map[string]string{FactLocation: "Bonn", FactNeedMedical: "none", FactPersonCount: "3"})
	assert.Equal(t, []string{FactVulnerable, FactCrisisType}, NextRequired(FlowTrapped, group))

	group.Set(FactVulnerable, "yes")
	assert.Equal(t, []string{FactMobilityNeeds, FactCrisisType}, NextRequired(FlowTrapped, group))

	group.Set(FactVulnerable, "no")
	assert.Equal(t, []string{FactCrisisType}, NextRequired(FlowTrapped, group))
}

func TestTrappedFlow_CategoryGating(t *testing.T) {
	state := stateWith(CategoryUnknown, map[string]string{
		FactLocation:    "Trier",
		FactNeedMedical: "none",
		FactPersonCount: "1",
		FactWaterLevel:  "above_60cm",
	})
	for _, name := range RequiredSlots(FlowTrapped, state) {
		assert.Falsef(t, IsCategoryFact(name), "category fact %q requested before category known", name)
	}
	assert.Equal(t, FactCrisisType, Next(FlowTrapped, state))
}

func TestTrappedFlow_CategoryLists(t *testing.T) {
	base := map[string]string{FactLocation: "Ahrweiler", FactNeedMedical: "none", FactPersonCount: "1"}

	flood := stateWith(CategoryFlood, base)
	assert.Equal(t, []string{FactWaterLevel, FactHazardType}, NextRequired(FlowTrapped, flood))

	flood.Set(FactWaterLevel, "below_10cm")
	assert.Equal(t, []string{FactHazardType}, NextRequired(FlowTrapped, flood))

	flood.Set(FactWaterLevel, "10cm_30cm")
	assert.Equal(t, []string{FactWaterTrend, FactFloorInfo, FactPowerOutage, FactHazardType}, NextRequired(FlowTrapped, flood))

	wildfire := stateWith(CategoryWildfire, base)
	assert.Equal(t, []string{FactFireDistance, FactSmokeInhaled, FactVehicleAccess}, NextRequired(FlowTrapped, wildfire))

	outage := stateWith(CategoryPowerOutage, base)
	assert.Equal(t, []string{FactHeatingCooling, FactBuildingFloor, FactOutageDuration}, NextRequired(FlowTrapped, outage))
}

func TestTrappedFlow_CompletesWhenAllAnswered(t *testing.T) {
	state := stateWith(CategoryWildfire, map[string]string{
		FactLocation:      "Potsdam",
		FactNeedMedical:   "none",
		FactPersonCount:   "1",
		FactFireDistance:  "visible",
		FactSmokeInhaled:  "none",
		FactVehicleAccess: "has_vehicle",
	})
	assert.True(t, Complete(FlowTrapped, state))
	assert.Equal(t, LevelLow, Score(state).Level)
}
