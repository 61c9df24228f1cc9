package ontology

import (
	"fmt"
	"time"
)

// Synergy is a candidate relationship between two or more devices worth
// automating (e.g. motion→light). Stored synergies are the source of
// positive training labels; synthesized negatives never become synergies.
type Synergy struct {
	ID                  string    `json:"synergy_id"`
	DeviceIDs           []string  `json:"device_ids"`
	SynergyType         string    `json:"synergy_type,omitempty"`
	ImpactScore         float64   `json:"impact_score"`
	Confidence          float64   `json:"confidence"`
	Area                string    `json:"area,omitempty"`
	ValidatedByPatterns bool      `json:"validated_by_patterns"`
	DetectedAt          time.Time `json:"detected_at"`
}

// Validate checks the invariants a synergy must satisfy before it can
// contribute training pairs.
func (s *Synergy) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("synergy: missing synergy_id")
	}
	if len(s.DeviceIDs) < 2 {
		return fmt.Errorf("synergy %s: needs at least 2 device_ids, got %d", s.ID, len(s.DeviceIDs))
	}
	for _, id := range s.DeviceIDs {
		if id == "" {
			return fmt.Errorf("synergy %s: empty device id", s.ID)
		}
	}
	return nil
}

// Label returns the weak-supervision label derived from the synergy's
// confidence: the stored confidence when it is usable, 1.0 otherwise.
func (s *Synergy) Label() float64 {
	if s.Confidence > 0 && s.Confidence <= 1 {
		return s.Confidence
	}
	return 1.0
}

// TrainingPair is one (device, device, label) sample. Pairs are derived,
// ephemeral and regenerated on every training run; they are never
// persisted independently.
type TrainingPair struct {
	DeviceA string  `json:"device_a"`
	DeviceB string  `json:"device_b"`
	Label   float64 `json:"label"`
}

// PairKey builds the canonical order-independent identity for a device
// pair, so (a,b) and (b,a) collapse to the same key.
func PairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// Key returns the pair's canonical identity.
func (p TrainingPair) Key() string {
	return PairKey(p.DeviceA, p.DeviceB)
}

// AcceptanceStats aggregates historical accept/reject feedback for a
// pattern type within one confidence band.
type AcceptanceStats struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
}

// Rate returns the acceptance rate, 0 when no feedback exists.
func (a AcceptanceStats) Rate() float64 {
	if a.Total == 0 {
		return 0
	}
	return float64(a.Accepted) / float64(a.Total)
}
