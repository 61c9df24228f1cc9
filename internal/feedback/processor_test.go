package feedback

import (
	"log/slog"
	"os"
	"testing"
)

func TestParseEvent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	processor := NewProcessor(logger)

	tests := []struct {
		name         string
		payload      string
		wantType     string
		wantAccepted bool
		wantErr      bool
		description  string
	}{
		{
			name:         "accepted suggestion",
			payload:      `{"pattern_type":"motion_lighting","confidence":0.87,"accepted":true}`,
			wantType:     "motion_lighting",
			wantAccepted: true,
			wantErr:      false,
			description:  "Should parse an accepted feedback event",
		},
		{
			name:         "rejected suggestion",
			payload:      `{"pattern_type":"co_occurrence","confidence":0.42,"accepted":false}`,
			wantType:     "co_occurrence",
			wantAccepted: false,
			wantErr:      false,
			description:  "Should parse a rejected feedback event",
		},
		{
			name:        "missing pattern type",
			payload:     `{"confidence":0.5,"accepted":true}`,
			wantErr:     true,
			description: "Should fail when pattern_type is absent",
		},
		{
			name:        "confidence above one",
			payload:     `{"pattern_type":"sequence","confidence":1.5,"accepted":true}`,
			wantErr:     true,
			description: "Should fail on out-of-range confidence",
		},
		{
			name:        "negative confidence",
			payload:     `{"pattern_type":"sequence","confidence":-0.1,"accepted":false}`,
			wantErr:     true,
			description: "Should fail on negative confidence",
		},
		{
			name:        "invalid JSON payload",
			payload:     `{invalid json}`,
			wantErr:     true,
			description: "Should fail on invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := processor.ParseEvent([]byte(tt.payload))

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseEvent() expected error but got none: %s", tt.description)
				}
				return
			}

			if err != nil {
				t.Errorf("ParseEvent() unexpected error: %v (%s)", err, tt.description)
				return
			}

			if event.PatternType != tt.wantType {
				t.Errorf("ParseEvent() patternType = %v, want %v", event.PatternType, tt.wantType)
			}

			if event.Accepted != tt.wantAccepted {
				t.Errorf("ParseEvent() accepted = %v, want %v", event.Accepted, tt.wantAccepted)
			}
		})
	}
}

func TestBandKey(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       string
	}{
		{name: "mid band floors down", confidence: 0.87, want: "0.8"},
		{name: "zero", confidence: 0.0, want: "0.0"},
		{name: "low band", confidence: 0.05, want: "0.0"},
		{name: "band boundary", confidence: 0.1, want: "0.1"},
		{name: "third band", confidence: 0.34, want: "0.3"},
		{name: "three quarters", confidence: 0.75, want: "0.7"},
		{name: "top boundary", confidence: 0.9, want: "0.9"},
		{name: "near one", confidence: 0.99, want: "0.9"},
		{name: "exactly one folds into top band", confidence: 1.0, want: "0.9"},
		{name: "negative clamps to zero band", confidence: -0.2, want: "0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BandKey(tt.confidence); got != tt.want {
				t.Errorf("BandKey(%v) = %v, want %v", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestEventBandMatchesKey(t *testing.T) {
	event := Event{PatternType: "motion_lighting", Confidence: 0.87, Accepted: true}
	if got := event.Band(); got != "0.8" {
		t.Errorf("Band() = %v, want 0.8", got)
	}
}
