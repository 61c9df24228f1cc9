package checker

import "testing"

func TestMatchScalars(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{"equal strings", "complete", "complete", true},
		{"unequal strings", "failed", "complete", false},
		{"string vs non-string", 42.0, "complete", false},
		{"equal bools", true, true, true},
		{"unequal bools", false, true, false},
		{"bool vs non-bool", "true", true, false},
		{"equal numbers same type", 3.0, 3.0, true},
		{"equal numbers mixed types", 3.0, 3, true},
		{"unequal numbers", 2.0, 3, false},
		{"number vs string actual", "3", 3, false},
		{"both nil", nil, nil, true},
		{"expected nil actual set", "x", nil, false},
		{"actual nil expected set", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Match(tt.actual, tt.expected)
			if got != tt.want {
				t.Errorf("Match(%v, %v) = %v (%s), want %v", tt.actual, tt.expected, got, reason, tt.want)
			}
		})
	}
}

func TestMatchRegex(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected string
		want     bool
	}{
		{"substring match", "light.bedroom", "~bedroom~", true},
		{"anchored version match", "v20260825143000-a1b2", `~^v\d{14}~`, true},
		{"no match", "light.kitchen", "~bedroom~", false},
		{"non-string actual stringified", 123.0, "~^123$~", true},
		{"invalid pattern", "anything", "~[~", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Match(tt.actual, tt.expected)
			if got != tt.want {
				t.Errorf("Match(%v, %q) = %v (%s), want %v", tt.actual, tt.expected, got, reason, tt.want)
			}
		})
	}
}

func TestMatchComparisons(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected string
		want     bool
	}{
		{"greater than passes", 2.0, ">1", true},
		{"greater than fails on equal", 1.0, ">1", false},
		{"greater or equal passes on equal", 1.0, ">=1", true},
		{"less than passes", 0.3, "<0.5", true},
		{"less or equal fails", 0.6, "<=0.5", false},
		{"integer actual", int64(6), ">=6", true},
		{"non-numeric actual", "six", ">=6", false},
		{"garbage threshold", 2.0, ">abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Match(tt.actual, tt.expected)
			if got != tt.want {
				t.Errorf("Match(%v, %q) = %v (%s), want %v", tt.actual, tt.expected, got, reason, tt.want)
			}
		})
	}
}

func TestMatchMaps(t *testing.T) {
	actual := map[string]interface{}{
		"status":         "complete",
		"nodes":          6.0,
		"training_pairs": 24.0,
		"result": map[string]interface{}{
			"device_a":  "light.bedroom",
			"same_area": true,
			"score":     0.72,
		},
	}

	tests := []struct {
		name     string
		expected map[string]interface{}
		want     bool
	}{
		{
			"subset of keys with matchers",
			map[string]interface{}{
				"status": "complete",
				"nodes":  ">=6",
				"result": map[string]interface{}{
					"same_area": true,
					"score":     ">0",
				},
			},
			true,
		},
		{
			"extra actual keys are ignored",
			map[string]interface{}{"status": "complete"},
			true,
		},
		{
			"missing expected key",
			map[string]interface{}{"version": "~^v~"},
			false,
		},
		{
			"nested mismatch",
			map[string]interface{}{
				"result": map[string]interface{}{"device_a": "light.kitchen"},
			},
			false,
		},
		{
			"non-map actual",
			map[string]interface{}{"status": "complete"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := interface{}(actual)
			if tt.name == "non-map actual" {
				in = "complete"
			}
			got, reason := Match(in, tt.expected)
			if got != tt.want {
				t.Errorf("Match(...) = %v (%s), want %v", got, reason, tt.want)
			}
		})
	}
}

func TestMatchArrays(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
		want     bool
	}{
		{
			"equal element-wise",
			[]interface{}{"bedroom", "kitchen"},
			[]interface{}{"bedroom", "kitchen"},
			true,
		},
		{
			"matchers inside elements",
			[]interface{}{0.9, 0.4},
			[]interface{}{">0.5", "<0.5"},
			true,
		},
		{
			"length mismatch",
			[]interface{}{"bedroom"},
			[]interface{}{"bedroom", "kitchen"},
			false,
		},
		{
			"element mismatch",
			[]interface{}{"bedroom", "kitchen"},
			[]interface{}{"bedroom", "hallway"},
			false,
		},
		{
			"non-array actual",
			"bedroom",
			[]interface{}{"bedroom"},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Match(tt.actual, tt.expected)
			if got != tt.want {
				t.Errorf("Match(%v, %v) = %v (%s), want %v", tt.actual, tt.expected, got, reason, tt.want)
			}
		})
	}
}
