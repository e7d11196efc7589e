package models

// DeliberationRound holds the surviving answers of one council round.
type DeliberationRound struct {
	Index      int                    `json:"index"`
	Answers    map[ProviderID]string  `json:"answers"`
	Confidence map[ProviderID]float64 `json:"confidence,omitempty"`
	Agreement  float64                `json:"agreement"`
}
