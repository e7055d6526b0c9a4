package handoff

import (
	"encoding/json"

	"github.com/crisos/crisos-core/internal/triage"
)

// DefaultSummaryMessages caps the transcript excerpt stored with a request.
const DefaultSummaryMessages = 10

// TranscriptEntry is one line of the conversation shown to operators.
type TranscriptEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Coordinates is the user's reported position, when known.
type Coordinates struct {
	Lat float64
	Lon float64
}

type summaryRisk struct {
	Score     int              `json:"score"`
	Level     triage.Level     `json:"level"`
	Breakdown triage.Breakdown `json:"breakdown"`
}

type summaryDoc struct {
	Slots        map[string]string `json:"slots"`
	Risk         *summaryRisk      `json:"risk,omitempty"`
	LastMessages []TranscriptEntry `json:"last_messages"`
	Lat          *float64          `json:"lat,omitempty"`
	Lon          *float64          `json:"lon,omitempty"`
}

// BuildSummary renders the operator-facing summary of a conversation. Only the
// last limit transcript entries are kept.
func BuildSummary(state *triage.State, assessment *triage.Assessment, transcript []TranscriptEntry, coords *Coordinates, limit int) json.RawMessage {
	if limit <= 0 {
		limit = DefaultSummaryMessages
	}
	doc := summaryDoc{Slots: map[string]string{}, LastMessages: []TranscriptEntry{}}
	if state != nil {
		for name, value := range state.Facts {
			doc.Slots[name] = value
		}
		if state.Category.Known() {
			doc.Slots[triage.FactCrisisType] = state.Category.String()
		}
		if state.UserStatus != triage.StatusUnknown {
			doc.Slots["user_status"] = string(state.UserStatus)
		}
	}
	if assessment != nil {
		doc.Risk = &summaryRisk{Score: assessment.Score, Level: assessment.Level, Breakdown: assessment.Breakdown}
	}
	for _, entry := range transcript {
		if entry.Text == "" {
			continue
		}
		doc.LastMessages = append(doc.LastMessages, entry)
	}
	if len(doc.LastMessages) > limit {
		doc.LastMessages = doc.LastMessages[len(doc.LastMessages)-limit:]
	}
	if coords != nil {
		lat, lon := coords.Lat, coords.Lon
		doc.Lat, doc.Lon = &lat, &lon
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return raw
}
