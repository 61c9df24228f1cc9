package patterns

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

const (
	// contradictionCoOccMin: a co-occurrence above this threshold marks
	// weaker time patterns on the same device as suspect.
	contradictionCoOccMin = 0.9

	// contradictionTimeMax: time patterns below this threshold can be
	// contradicted.
	contradictionTimeMax = 0.75

	// reinforcementWindowMinutes: two time patterns this close reinforce
	// each other.
	reinforcementWindowMinutes = 30

	// redundancyConfidenceDelta: two co-occurrence patterns over the same
	// pair closer than this are redundant.
	redundancyConfidenceDelta = 0.05
)

// FindingType classifies a relationship between two patterns.
type FindingType string

const (
	FindingContradiction FindingType = "contradiction"
	FindingReinforcement FindingType = "reinforcement"
	FindingRedundancy    FindingType = "redundancy"
)

// Finding is one classified relationship between two patterns on the
// same device.
type Finding struct {
	Type       FindingType `json:"finding_type"`
	DeviceID   string      `json:"device_id"`
	PatternIDs []uuid.UUID `json:"pattern_ids"`
	Detail     string      `json:"detail"`
}

// Report aggregates the findings over a pattern batch plus the derived
// quality score.
type Report struct {
	Findings       []Finding `json:"findings"`
	Contradictions int       `json:"contradictions"`
	Reinforcements int       `json:"reinforcements"`
	Redundancies   int       `json:"redundancies"`
	QualityScore   float64   `json:"quality_score"`
	Evaluated      int       `json:"evaluated"`
	Skipped        int       `json:"skipped"`
}

// CrossValidator flags contradictory, redundant and mutually-reinforcing
// pattern combinations. Input patterns are read-only to it.
type CrossValidator struct {
	logger *slog.Logger
}

// NewCrossValidator creates a cross-validator.
func NewCrossValidator(logger *slog.Logger) *CrossValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossValidator{logger: logger}
}

// Validate classifies pattern relationships per device and aggregates a
// quality score. Malformed patterns are skipped and logged; they
// contribute nothing to the findings.
func (v *CrossValidator) Validate(input []*ontology.Pattern) *Report {
	report := &Report{}

	byDevice := make(map[string][]*ontology.Pattern)
	for _, p := range input {
		if p == nil {
			report.Skipped++
			continue
		}
		if err := p.Validate(); err != nil {
			v.logger.Warn("Skipping malformed pattern", "error", err)
			report.Skipped++
			continue
		}
		report.Evaluated++
		byDevice[p.PrimaryDevice()] = append(byDevice[p.PrimaryDevice()], p)
	}

	devices := make([]string, 0, len(byDevice))
	for device := range byDevice {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	for _, device := range devices {
		v.validateDevice(device, byDevice[device], report)
	}

	report.QualityScore = qualityScore(report.Reinforcements, report.Contradictions, report.Redundancies)

	v.logger.Info("Cross-validated patterns",
		"evaluated", report.Evaluated,
		"skipped", report.Skipped,
		"contradictions", report.Contradictions,
		"reinforcements", report.Reinforcements,
		"redundancies", report.Redundancies,
		"quality_score", report.QualityScore)

	return report
}

// validateDevice classifies the pattern relationships for one device.
func (v *CrossValidator) validateDevice(device string, patterns []*ontology.Pattern, report *Report) {
	var timePatterns, coOccurrence []*ontology.Pattern
	for _, p := range patterns {
		switch p.Type {
		case ontology.PatternTimeOfDay:
			timePatterns = append(timePatterns, p)
		case ontology.PatternCoOccurrence:
			coOccurrence = append(coOccurrence, p)
		}
	}

	// Contradiction: a strong co-occurrence signal suggests a weak time
	// pattern on the same device is spurious.
	for _, co := range coOccurrence {
		if co.Confidence <= contradictionCoOccMin {
			continue
		}
		for _, tp := range timePatterns {
			if tp.Confidence >= contradictionTimeMax {
				continue
			}
			report.Contradictions++
			report.Findings = append(report.Findings, Finding{
				Type:       FindingContradiction,
				DeviceID:   device,
				PatternIDs: []uuid.UUID{co.ID, tp.ID},
				Detail: fmt.Sprintf("strong co-occurrence (%.2f) contradicts weak time-of-day (%.2f)",
					co.Confidence, tp.Confidence),
			})
		}
	}

	// Reinforcement: two time patterns close together back each other up.
	for i := 0; i < len(timePatterns); i++ {
		mi, _ := timePatterns[i].MinuteOfDay()
		for j := i + 1; j < len(timePatterns); j++ {
			mj, _ := timePatterns[j].MinuteOfDay()
			gap := mi - mj
			if gap < 0 {
				gap = -gap
			}
			if gap > reinforcementWindowMinutes {
				continue
			}
			report.Reinforcements++
			report.Findings = append(report.Findings, Finding{
				Type:       FindingReinforcement,
				DeviceID:   device,
				PatternIDs: []uuid.UUID{timePatterns[i].ID, timePatterns[j].ID},
				Detail:     fmt.Sprintf("time patterns %d minutes apart", gap),
			})
		}
	}

	// Redundancy: two co-occurrence patterns over the same unordered pair
	// with nearly identical confidence.
	for i := 0; i < len(coOccurrence); i++ {
		for j := i + 1; j < len(coOccurrence); j++ {
			if !samePair(coOccurrence[i], coOccurrence[j]) {
				continue
			}
			delta := coOccurrence[i].Confidence - coOccurrence[j].Confidence
			if delta < 0 {
				delta = -delta
			}
			if delta >= redundancyConfidenceDelta {
				continue
			}
			report.Redundancies++
			report.Findings = append(report.Findings, Finding{
				Type:       FindingRedundancy,
				DeviceID:   device,
				PatternIDs: []uuid.UUID{coOccurrence[i].ID, coOccurrence[j].ID},
				Detail:     fmt.Sprintf("duplicate pair with confidence delta %.3f", delta),
			})
		}
	}
}

// samePair reports whether two co-occurrence patterns reference the same
// unordered device pair.
func samePair(a, b *ontology.Pattern) bool {
	a1, a2, ok := a.DevicePair()
	if !ok {
		return false
	}
	b1, b2, ok := b.DevicePair()
	if !ok {
		return false
	}
	return ontology.PairKey(a1, a2) == ontology.PairKey(b1, b2)
}

// qualityScore aggregates finding counts into the [0,1] quality measure:
// 0.5 + 0.1 per reinforcement - 0.2 per contradiction - 0.05 per
// redundancy, clamped.
func qualityScore(reinforcements, contradictions, redundancies int) float64 {
	score := 0.5 + 0.1*float64(reinforcements) - 0.2*float64(contradictions) - 0.05*float64(redundancies)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
