package deal

import (
	"math"
	"strings"
)

// Canonical pipeline statuses (French vocabulary, as stored).
const (
	StatusProspect    = "prospect"
	StatusQualified   = "qualifié"
	StatusNegotiation = "négociation"
	StatusWon         = "gagné"
	StatusWonOngoing  = "gagné - en cours"
)

// DefaultProbability is the lowest tier, used for any unrecognized status.
const DefaultProbability = 0.10

// probabilityByStatus maps each canonical status to its conversion
// probability tier.
var probabilityByStatus = map[string]float64{
	StatusProspect:    0.10,
	StatusQualified:   0.30,
	StatusNegotiation: 0.70,
	StatusWon:         1.00,
	StatusWonOngoing:  1.00, // treated as won
}

// statusTranslations maps known English status labels to the canonical
// French vocabulary. Keys are lowercased and trimmed.
var statusTranslations = map[string]string{
	"lead":              StatusProspect,
	"new":               StatusProspect,
	"qualified":         StatusQualified,
	"negotiation":       StatusNegotiation,
	"negotiating":       StatusNegotiation,
	"in negotiation":    StatusNegotiation,
	"won":               StatusWon,
	"closed won":        StatusWon,
	"won - in progress": StatusWonOngoing,
}

// ValidStatuses returns the canonical status set, lowest tier first.
func ValidStatuses() []string {
	return []string{StatusProspect, StatusQualified, StatusNegotiation, StatusWon, StatusWonOngoing}
}

// IsValidStatus reports whether s is canonical (case-insensitive).
func IsValidStatus(s string) bool {
	_, ok := probabilityByStatus[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// NormalizeStatus maps a raw status string to a canonical status.
// It first tries a direct match against the canonical vocabulary, then the
// English translation table. ok is false for anything unrecognized; callers
// should surface that as a diagnostic, not a hard failure.
func NormalizeStatus(raw string) (status string, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", false
	}

	if _, valid := probabilityByStatus[normalized]; valid {
		return normalized, true
	}

	if translated, found := statusTranslations[normalized]; found {
		return translated, true
	}

	return "", false
}

// Probability returns the conversion probability for a status.
// Unrecognized statuses fall back to the lowest tier.
func Probability(status string) float64 {
	if p, ok := probabilityByStatus[strings.ToLower(strings.TrimSpace(status))]; ok {
		return p
	}
	return DefaultProbability
}

// WeightedValue computes amount × probability rounded to 2 decimals.
func WeightedValue(amount, probability float64) float64 {
	return math.Round(amount*probability*100) / 100
}
