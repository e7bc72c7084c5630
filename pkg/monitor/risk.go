package monitor

import "encoding/json"

// DangerThreshold is the score above which a session is considered in
// active danger. The threshold is strict: a score of exactly 70 is not
// danger.
const DangerThreshold = 70

// Signals are the deception categories the model reports.
type Signals struct {
	Impersonation bool `json:"impersonation"`
	Urgency       bool `json:"urgency"`
	Financial     bool `json:"financial"`
	Manipulation  bool `json:"manipulation"`
}

// RiskState is the current assessment of the call.
type RiskState struct {
	Score   int     `json:"score"`
	Signals Signals `json:"signals"`
}

// Danger reports whether the score is above the danger threshold.
func (r RiskState) Danger() bool {
	return r.Score > DangerThreshold
}

// riskUpdateArgs mirrors the updateRisk function call payload. Absent
// signal fields decode to false.
type riskUpdateArgs struct {
	Score         float64 `json:"score"`
	AlertMessage  string  `json:"alertMessage"`
	Impersonation bool    `json:"impersonation"`
	Urgency       bool    `json:"urgency"`
	Financial     bool    `json:"financial"`
	Manipulation  bool    `json:"manipulation"`
}

// parseRiskUpdate decodes updateRisk arguments into a replacement risk
// state. The score is clamped to [0, 100].
func parseRiskUpdate(args json.RawMessage) (RiskState, string, error) {
	var parsed riskUpdateArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return RiskState{}, "", err
	}
	return RiskState{
		Score: clampScore(parsed.Score),
		Signals: Signals{
			Impersonation: parsed.Impersonation,
			Urgency:       parsed.Urgency,
			Financial:     parsed.Financial,
			Manipulation:  parsed.Manipulation,
		},
	}, parsed.AlertMessage, nil
}

func clampScore(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}
