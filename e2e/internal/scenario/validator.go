package scenario

import "fmt"

var redisChecks = map[string]bool{
	"hash_field": true,
	"zset_count": true,
	"exists":     true,
}

// ValidateScenario performs validation checks on a loaded scenario
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("scenario description is required")
	}

	if err := validateSeed(s.Seed); err != nil {
		return fmt.Errorf("seed validation failed: %w", err)
	}

	if err := validateSteps(s.Steps); err != nil {
		return fmt.Errorf("steps validation failed: %w", err)
	}

	if err := validateWaitPeriods(s.Wait); err != nil {
		return fmt.Errorf("wait periods validation failed: %w", err)
	}

	if err := validateExpectations(s.Expectations); err != nil {
		return fmt.Errorf("expectations validation failed: %w", err)
	}

	return nil
}

func validateSeed(seed SeedConfig) error {
	for i, entity := range seed.Entities {
		if entity.EntityID == "" {
			return fmt.Errorf("entity %d: entity_id is required", i)
		}
		if entity.Domain == "" {
			return fmt.Errorf("entity %d: domain is required", i)
		}
	}

	for i, syn := range seed.Synergies {
		if syn.ID == "" {
			return fmt.Errorf("synergy %d: id is required", i)
		}
		if len(syn.DeviceIDs) < 2 {
			return fmt.Errorf("synergy %d: at least two device_ids are required", i)
		}
		if syn.Confidence < 0 || syn.Confidence > 1 {
			return fmt.Errorf("synergy %d: confidence must be within [0,1]", i)
		}
	}

	return nil
}

func validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	for i, step := range steps {
		if step.Time < 0 {
			return fmt.Errorf("step %d: time cannot be negative", i)
		}
		if step.Topic == "" {
			return fmt.Errorf("step %d: topic is required", i)
		}
		if step.Description == "" {
			return fmt.Errorf("step %d: description is required", i)
		}
	}

	return nil
}

func validateWaitPeriods(waits []WaitPeriod) error {
	for i, wait := range waits {
		if wait.Time < 0 {
			return fmt.Errorf("wait period %d: time cannot be negative", i)
		}
		if wait.Description == "" {
			return fmt.Errorf("wait period %d: description is required", i)
		}
	}

	return nil
}

func validateExpectations(expectations map[string][]Expectation) error {
	if len(expectations) == 0 {
		return fmt.Errorf("at least one expectation is required")
	}

	for layer, exps := range expectations {
		if layer == "" {
			return fmt.Errorf("expectation layer name cannot be empty")
		}

		for i, exp := range exps {
			if exp.Time < 0 {
				return fmt.Errorf("layer %s, expectation %d: time cannot be negative", layer, i)
			}

			switch exp.Kind() {
			case "mqtt":
				if exp.Topic == "" {
					return fmt.Errorf("layer %s, expectation %d: one of topic, redis_key or postgres_query is required", layer, i)
				}
				if len(exp.Payload) == 0 {
					return fmt.Errorf("layer %s, expectation %d: MQTT expectations require a payload", layer, i)
				}

			case "redis":
				if !redisChecks[exp.RedisCheck] {
					return fmt.Errorf("layer %s, expectation %d: redis_check must be one of hash_field, zset_count, exists", layer, i)
				}
				if exp.RedisCheck == "hash_field" && exp.RedisField == "" {
					return fmt.Errorf("layer %s, expectation %d: redis_field is required for hash_field checks", layer, i)
				}
				if exp.Expected == "" {
					return fmt.Errorf("layer %s, expectation %d: expected is required for redis checks", layer, i)
				}

			case "postgres":
				if exp.PostgresExpected == nil {
					return fmt.Errorf("layer %s, expectation %d: postgres_expected is required when postgres_query is specified", layer, i)
				}
			}
		}
	}

	return nil
}
