package calibration

import (
	"context"
	"log/slog"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

const (
	// conservativeFactor is applied when a band has too little feedback
	// to trust the acceptance rate.
	conservativeFactor = 0.95

	// highAcceptanceRate marks the point where calibration starts
	// boosting confidence.
	highAcceptanceRate = 0.8

	// lowAcceptanceRate marks the point below which calibration starts
	// discounting confidence.
	lowAcceptanceRate = 0.5

	// DefaultMinSamples is how much feedback a band needs before its
	// acceptance rate is trusted.
	DefaultMinSamples = 10
)

// Band is the confidence interval a calibration lookup covers: the raw
// confidence plus/minus 0.1, clamped to [0,1].
type Band struct {
	Low  float64
	High float64
}

// BandAround returns the lookup band for a raw confidence value.
func BandAround(confidence float64) Band {
	band := Band{Low: confidence - 0.1, High: confidence + 0.1}
	if band.Low < 0 {
		band.Low = 0
	}
	if band.High > 1 {
		band.High = 1
	}
	return band
}

// AcceptanceSource supplies historical accept/reject counts for a pattern
// type within a confidence band. The feedback collector provides the
// production implementation; tests use fixed fakes.
type AcceptanceSource interface {
	Stats(ctx context.Context, patternType string, band Band) (ontology.AcceptanceStats, error)
}

// Calibrator rescales raw pattern confidence using historical acceptance
// feedback. It is independent of the synergy scorer: the scorer judges
// whether a relationship exists, the calibrator judges how much users
// have historically trusted findings like it.
type Calibrator struct {
	source     AcceptanceSource
	minSamples int
	logger     *slog.Logger
}

// NewCalibrator creates a calibrator. minSamples below 1 falls back to
// DefaultMinSamples.
func NewCalibrator(source AcceptanceSource, minSamples int, logger *slog.Logger) *Calibrator {
	if minSamples < 1 {
		minSamples = DefaultMinSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibrator{
		source:     source,
		minSamples: minSamples,
		logger:     logger,
	}
}

// Calibrate rescales one raw confidence value for a pattern type. With
// fewer than minSamples of feedback in the band (or no usable source)
// the conservative default raw*0.95 is returned. The result is always
// clamped to [0,1].
func (c *Calibrator) Calibrate(ctx context.Context, patternType string, raw float64) float64 {
	stats, ok := c.lookup(ctx, patternType, raw)
	if !ok {
		return clamp01(raw * conservativeFactor)
	}
	return clamp01(raw * acceptanceFactor(stats.Rate()))
}

// lookup fetches acceptance stats and reports whether they are usable.
func (c *Calibrator) lookup(ctx context.Context, patternType string, raw float64) (ontology.AcceptanceStats, bool) {
	if c.source == nil {
		return ontology.AcceptanceStats{}, false
	}

	stats, err := c.source.Stats(ctx, patternType, BandAround(raw))
	if err != nil {
		// A broken feedback store degrades to the conservative default
		// instead of failing the scoring path.
		c.logger.Warn("Acceptance lookup failed, using conservative calibration",
			"pattern_type", patternType,
			"error", err)
		return ontology.AcceptanceStats{}, false
	}
	if stats.Total < c.minSamples {
		return ontology.AcceptanceStats{}, false
	}
	return stats, true
}

// CalibratePattern returns a calibrated copy of the pattern, annotated
// with the raw confidence it started from. The input is never mutated.
func (c *Calibrator) CalibratePattern(ctx context.Context, p *ontology.Pattern) *ontology.Pattern {
	calibrated := p.Clone()
	calibrated.Confidence = c.Calibrate(ctx, string(p.Type), p.Confidence)
	if calibrated.Metadata == nil {
		calibrated.Metadata = make(map[string]interface{})
	}
	calibrated.Metadata["raw_confidence"] = p.Confidence
	calibrated.Metadata["calibrated"] = true
	return calibrated
}

// CalibrateBatch calibrates each pattern in turn. Malformed patterns are
// skipped and logged rather than failing the batch.
func (c *Calibrator) CalibrateBatch(ctx context.Context, input []*ontology.Pattern) []*ontology.Pattern {
	output := make([]*ontology.Pattern, 0, len(input))
	skipped := 0

	for _, p := range input {
		if p == nil {
			skipped++
			continue
		}
		if err := p.Validate(); err != nil {
			c.logger.Warn("Skipping malformed pattern", "error", err)
			skipped++
			continue
		}
		output = append(output, c.CalibratePattern(ctx, p))
	}

	if skipped > 0 {
		c.logger.Info("Calibrated pattern batch", "calibrated", len(output), "skipped", skipped)
	}

	return output
}

// acceptanceFactor maps an acceptance rate to a confidence multiplier:
// highly accepted bands get a small boost (capped at 1.1x), middling
// bands pass through and poorly accepted bands are discounted.
func acceptanceFactor(rate float64) float64 {
	switch {
	case rate >= highAcceptanceRate:
		return 1.0 + (rate-highAcceptanceRate)*0.5
	case rate >= lowAcceptanceRate:
		return 1.0
	default:
		return 0.7 + rate*0.6
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
