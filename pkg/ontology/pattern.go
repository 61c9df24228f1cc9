package ontology

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PatternType tags the behavioral pattern variants produced by the
// upstream detectors. The pipeline only interprets time_of_day and
// co_occurrence specially; other types flow through signature-based
// deduplication untouched.
type PatternType string

const (
	PatternTimeOfDay    PatternType = "time_of_day"
	PatternCoOccurrence PatternType = "co_occurrence"
	PatternSequence     PatternType = "sequence"
	PatternDuration     PatternType = "duration"
)

// Pattern is a statistically detected regularity in device behavior.
// Patterns are created by upstream detectors, consolidated by the
// deduplicator and read-only to the cross-validator.
//
// Variant fields live in Metadata (hour/minute for time_of_day, the
// second device for co_occurrence) and are reached through the typed
// accessors below; Validate checks them once at ingestion so read sites
// do not have to.
type Pattern struct {
	ID          uuid.UUID              `json:"id"`
	Type        PatternType            `json:"pattern_type"`
	DeviceID    string                 `json:"device_id"`
	DeviceIDs   []string               `json:"device_ids,omitempty"`
	Confidence  float64                `json:"confidence"`
	Occurrences int                    `json:"occurrences"`
	Metadata    map[string]interface{} `json:"pattern_metadata,omitempty"`
	DetectedAt  time.Time              `json:"detected_at"`
}

// Validate checks the invariants shared by all pattern variants plus the
// variant-specific fields. It is called at ingestion; a pattern that
// fails validation is skipped by batch operations, not fatal to them.
func (p *Pattern) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("pattern %s: missing pattern_type", p.ID)
	}
	if p.DeviceID == "" && len(p.DeviceIDs) == 0 {
		return fmt.Errorf("pattern %s: no device reference", p.ID)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s: confidence %.3f outside [0,1]", p.ID, p.Confidence)
	}
	if p.Occurrences < 0 {
		return fmt.Errorf("pattern %s: negative occurrences %d", p.ID, p.Occurrences)
	}
	switch p.Type {
	case PatternTimeOfDay:
		if _, ok := p.MinuteOfDay(); !ok {
			return fmt.Errorf("pattern %s: time_of_day pattern without hour/minute metadata", p.ID)
		}
	case PatternCoOccurrence:
		if _, _, ok := p.DevicePair(); !ok {
			return fmt.Errorf("pattern %s: co_occurrence pattern without a device pair", p.ID)
		}
	}
	return nil
}

// Hour returns the hour-of-day metadata for time-based patterns.
func (p *Pattern) Hour() (int, bool) {
	return p.metadataInt("hour")
}

// Minute returns the minute metadata for time-based patterns.
func (p *Pattern) Minute() (int, bool) {
	return p.metadataInt("minute")
}

// MinuteOfDay flattens hour/minute into minutes since midnight. Missing
// minute metadata defaults to 0 as long as the hour is present.
func (p *Pattern) MinuteOfDay() (int, bool) {
	hour, ok := p.Hour()
	if !ok || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, ok := p.Minute()
	if !ok {
		minute = 0
	}
	if minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// DevicePair returns the unordered device pair a co_occurrence pattern
// references, from DeviceIDs when present, otherwise from DeviceID plus
// the related_device metadata field.
func (p *Pattern) DevicePair() (string, string, bool) {
	if len(p.DeviceIDs) >= 2 && p.DeviceIDs[0] != "" && p.DeviceIDs[1] != "" {
		return p.DeviceIDs[0], p.DeviceIDs[1], true
	}
	if related, ok := p.metadataString("related_device"); ok && p.DeviceID != "" && related != "" {
		return p.DeviceID, related, true
	}
	return "", "", false
}

// PrimaryDevice returns the device the pattern is grouped under.
func (p *Pattern) PrimaryDevice() string {
	if p.DeviceID != "" {
		return p.DeviceID
	}
	if len(p.DeviceIDs) > 0 {
		return p.DeviceIDs[0]
	}
	return ""
}

// Clone returns a copy safe to annotate without mutating the original.
// Metadata is copied one level deep, which covers every field the
// pipeline writes.
func (p *Pattern) Clone() *Pattern {
	out := *p
	if p.DeviceIDs != nil {
		out.DeviceIDs = append([]string(nil), p.DeviceIDs...)
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func (p *Pattern) metadataInt(key string) (int, bool) {
	if p.Metadata == nil {
		return 0, false
	}
	// JSON round-trips numbers as float64; detectors running in-process
	// hand us ints.
	switch v := p.Metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	default:
		return 0, false
	}
}

func (p *Pattern) metadataString(key string) (string, bool) {
	if p.Metadata == nil {
		return "", false
	}
	s, ok := p.Metadata[key].(string)
	return s, ok
}
