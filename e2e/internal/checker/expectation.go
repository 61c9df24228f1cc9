package checker

import (
	"fmt"

	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/observer"
	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/scenario"
)

// CheckMQTTExpectation validates an expectation against captured MQTT
// traffic. The latest message on the expected topic is the one that
// must match, so a retrain during the scenario supersedes earlier
// reports.
func CheckMQTTExpectation(exp scenario.Expectation, messages []observer.CapturedMessage) (bool, string, interface{}) {
	var latest *observer.CapturedMessage
	for i := range messages {
		if messages[i].Topic == exp.Topic {
			latest = &messages[i]
		}
	}

	if latest == nil {
		return false, fmt.Sprintf("no messages captured on topic %q", exp.Topic), nil
	}

	payloadMap, ok := latest.Payload.(map[string]interface{})
	if !ok {
		return false, fmt.Sprintf("payload on %q is not a JSON object, got %T", exp.Topic, latest.Payload), latest.Payload
	}

	if matched, reason := Match(payloadMap, exp.Payload); !matched {
		return false, reason, latest.Payload
	}

	return true, "", latest.Payload
}
