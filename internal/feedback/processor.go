// Package feedback collects accept/reject verdicts on surfaced
// suggestions and maintains the acceptance counters that drive
// confidence calibration. PostgreSQL holds the authoritative history;
// Redis mirrors live counts for fast calibration reads.
package feedback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
)

// Event is one accept/reject verdict on a surfaced suggestion or
// pattern, as published by the UI layer.
type Event struct {
	PatternType string  `json:"pattern_type"`
	Confidence  float64 `json:"confidence"`
	Accepted    bool    `json:"accepted"`
}

// Validate checks the invariants an event must satisfy before it can
// move a counter.
func (e *Event) Validate() error {
	if e.PatternType == "" {
		return fmt.Errorf("feedback: missing pattern_type")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("feedback: confidence %.3f outside [0,1]", e.Confidence)
	}
	return nil
}

// Band returns the counter bucket the event falls in.
func (e *Event) Band() string {
	return BandKey(e.Confidence)
}

// BandKey buckets a confidence value into its 0.1-wide band label:
// 0.87 lands in "0.8". Confidence 1.0 folds into the top band "0.9" so
// every value has a bucket.
func BandKey(confidence float64) string {
	if confidence >= 1 {
		confidence = 0.99
	}
	if confidence < 0 {
		confidence = 0
	}
	return fmt.Sprintf("%.1f", math.Floor(confidence*10)/10)
}

// Processor parses and validates feedback events.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a feedback processor.
func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger}
}

// ParseEvent parses an MQTT feedback payload into a validated event.
func (p *Processor) ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse feedback payload: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	p.logger.Debug("Parsed feedback event",
		"pattern_type", event.PatternType,
		"confidence", event.Confidence,
		"accepted", event.Accepted)

	return &event, nil
}
