package scenario

import "time"

// Scenario describes one end-to-end run against a live stack: seed the
// database, publish a timed sequence of MQTT messages and verify the
// pipeline's outputs across MQTT, Redis and Postgres.
type Scenario struct {
	Name         string                   `yaml:"name"`
	Description  string                   `yaml:"description"`
	Seed         SeedConfig               `yaml:"seed"`
	Steps        []Step                   `yaml:"steps"`
	Wait         []WaitPeriod             `yaml:"wait"`
	Expectations map[string][]Expectation `yaml:"expectations"`
}

// SeedConfig is the database state installed before the run starts.
type SeedConfig struct {
	Entities  []EntityRow  `yaml:"entities,omitempty"`
	Synergies []SynergyRow `yaml:"synergies,omitempty"`
}

// EntityRow seeds one row of the entities table.
type EntityRow struct {
	EntityID     string `yaml:"entity_id"`
	Domain       string `yaml:"domain"`
	AreaID       string `yaml:"area_id,omitempty"`
	FriendlyName string `yaml:"friendly_name,omitempty"`
}

// SynergyRow seeds one row of the synergies table, a positive training
// label for the scoring model.
type SynergyRow struct {
	ID          string   `yaml:"id"`
	DeviceIDs   []string `yaml:"device_ids"`
	SynergyType string   `yaml:"synergy_type"`
	ImpactScore float64  `yaml:"impact_score"`
	Confidence  float64  `yaml:"confidence"`
	Area        string   `yaml:"area,omitempty"`
}

// Step publishes one MQTT message at a given offset from the start:
// training triggers, prediction requests, pattern batches, feedback.
type Step struct {
	Time        int                    `yaml:"time"` // Seconds from start
	Topic       string                 `yaml:"topic"`
	Payload     map[string]interface{} `yaml:"payload"`
	Description string                 `yaml:"description"`
}

// WaitPeriod marks a pause in the scenario timeline.
type WaitPeriod struct {
	Time        int    `yaml:"time"` // Seconds from start
	Description string `yaml:"description"`
}

// Expectation is one verification at a given offset. Exactly one of
// the three check families applies: an MQTT payload match on Topic, a
// Redis state check, or a Postgres query check.
type Expectation struct {
	Time int `yaml:"time"` // Seconds from start

	// MQTT: latest captured message on Topic must match Payload.
	// Values support matchers: "~regex~", ">n", ">=n", "<n", "<=n".
	Topic   string                 `yaml:"topic,omitempty"`
	Payload map[string]interface{} `yaml:"payload,omitempty"`

	// Redis state checks. Check selects the read: "hash_field" reads
	// Field from a hash, "zset_count" reads the sorted set cardinality,
	// "exists" reads key existence ("1"/"0").
	RedisKey   string `yaml:"redis_key,omitempty"`
	RedisCheck string `yaml:"redis_check,omitempty"`
	RedisField string `yaml:"redis_field,omitempty"`
	Expected   string `yaml:"expected,omitempty"`

	// Postgres: single-value query compared against postgres_expected
	// ("~n" allows a ±20% tolerance).
	PostgresQuery    string      `yaml:"postgres_query,omitempty"`
	PostgresExpected interface{} `yaml:"postgres_expected,omitempty"`
}

// Kind reports which check family the expectation belongs to.
func (e *Expectation) Kind() string {
	switch {
	case e.PostgresQuery != "":
		return "postgres"
	case e.RedisKey != "":
		return "redis"
	default:
		return "mqtt"
	}
}

// TestResult is the outcome of running a scenario.
type TestResult struct {
	Scenario     *Scenario
	StartTime    time.Time
	EndTime      time.Time
	Passed       bool
	PassedCount  int
	FailedCount  int
	Expectations []ExpectationResult
}

// ExpectationResult is the outcome of one expectation check.
type ExpectationResult struct {
	Layer         string
	Expectation   Expectation
	Passed        bool
	Reason        string
	ActualTopic   string
	ActualPayload interface{}
}
