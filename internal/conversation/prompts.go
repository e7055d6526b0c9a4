package conversation

import "github.com/crisos/crisos-core/internal/triage"

// User-facing replies.
const (
	AskStatusText        = "Are you in an emergency right now, trapped but currently safe, or safe?"
	SafeText             = "Glad to hear you are safe. Stay informed through official channels and message us again if that changes."
	LowRiskText          = "Thank you. Based on your answers your situation is not critical right now. Stay where you are safe and message us again if anything changes."
	MediumRiskText       = "Thank you. Your situation needs attention, so I am passing it to a human operator."
	HighRiskText         = "Your situation looks serious."
	HandoffText          = "Connecting you to a human operator now. Please keep this chat open."
	UpdatedText          = "I have passed your updated details to the operator."
	EscalationFailedText = "I'm sorry, I couldn't reach an operator right now. If you are in immediate danger call 112."
)

var factPrompts = map[string]string{
	triage.FactNeedMedical:    "Does anyone need medical help? (none, medications, injured, critical)",
	triage.FactLocation:       "Where are you right now? A street address or town is enough.",
	triage.FactPersonCount:    "How many people are with you, including yourself?",
	triage.FactVulnerable:     "Is anyone in your group a child, elderly, pregnant or otherwise vulnerable? (yes/no)",
	triage.FactMobilityNeeds:  "Does anyone need help moving, for example a wheelchair user? (yes/no)",
	triage.FactCrisisType:     "What kind of emergency is it: flood, wildfire or power outage?",
	triage.FactWaterLevel:     "How high is the water where you are? (below 10cm, 10-30cm, 30-60cm, above 60cm)",
	triage.FactWaterTrend:     "Is the water rising? (no, stable, slowly rising, rising fast)",
	triage.FactFloorInfo:      "Which floor are you on? (basement, ground, upper floor)",
	triage.FactPowerOutage:    "Is the power out where you are? (yes/no)",
	triage.FactHazardType:     "Do you notice any other danger? (none, gas smell, electricity risk, fire)",
	triage.FactFireDistance:   "How close is the fire? (none, visible, nearby, surrounding you)",
	triage.FactSmokeInhaled:   "Is the smoke affecting your breathing? (none, slightly difficult, can't breathe)",
	triage.FactVehicleAccess:  "Do you have a vehicle you can leave in?",
	triage.FactHeatingCooling: "How is the temperature indoors? (normal, uncomfortable, dangerous)",
	triage.FactBuildingFloor:  "Which floor do you live on? (ground/1st, 2-4, 5 or higher)",
	triage.FactOutageDuration: "How long has the power been out or is expected to be? (below 6 hours, 6-24 hours, above 24 hours)",
}

// PromptFor returns the question for a fact.
func PromptFor(fact string) string {
	if p, ok := factPrompts[fact]; ok {
		return p
	}
	return "Could you tell me more about " + fact + "?"
}
