package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/scenario"
)

// TimelineEvent is a single line in the run timeline
type TimelineEvent struct {
	Elapsed     float64
	Layer       string
	Description string
	Success     bool // only meaningful when IsCheck is true
	IsCheck     bool
}

// GenerateTimeline creates a human-readable timeline of a scenario run
func GenerateTimeline(result *scenario.TestResult, events []TimelineEvent) string {
	var sb strings.Builder

	duration := result.EndTime.Sub(result.StartTime)

	sb.WriteString("============================================================\n")
	sb.WriteString(fmt.Sprintf("  Scenario: %s\n", result.Scenario.Name))
	sb.WriteString(fmt.Sprintf("  Duration: %s\n", formatDuration(duration)))
	sb.WriteString("============================================================\n\n")

	for _, event := range events {
		icon := "->"
		if event.IsCheck {
			if event.Success {
				icon = "ok"
			} else {
				icon = "FF"
			}
		}

		sb.WriteString(fmt.Sprintf("[%7.2fs] %s %-12s: %s\n",
			event.Elapsed,
			icon,
			event.Layer,
			event.Description,
		))
	}

	sb.WriteString("\n=== Expectations ===\n")

	layerResults := make(map[string][]scenario.ExpectationResult)
	var layerOrder []string
	for _, expResult := range result.Expectations {
		if _, seen := layerResults[expResult.Layer]; !seen {
			layerOrder = append(layerOrder, expResult.Layer)
		}
		layerResults[expResult.Layer] = append(layerResults[expResult.Layer], expResult)
	}

	for _, layer := range layerOrder {
		sb.WriteString(fmt.Sprintf("Layer: %s\n", layer))
		for _, expResult := range layerResults[layer] {
			icon := "ok"
			if !expResult.Passed {
				icon = "FF"
			}

			sb.WriteString(fmt.Sprintf("  %s %s", icon, describeExpectation(expResult.Expectation)))

			if !expResult.Passed {
				sb.WriteString(fmt.Sprintf(": %s", expResult.Reason))
			} else if len(expResult.Expectation.Payload) > 0 {
				var conditions []string
				for key, val := range expResult.Expectation.Payload {
					conditions = append(conditions, fmt.Sprintf("%s=%v", key, val))
				}
				sb.WriteString(fmt.Sprintf(": %s", strings.Join(conditions, ", ")))
			}

			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	status := "ALL CHECKS PASSED"
	if result.FailedCount > 0 {
		status = fmt.Sprintf("%d CHECK(S) FAILED", result.FailedCount)
	}

	sb.WriteString("============================================================\n")
	sb.WriteString("  SUMMARY\n")
	sb.WriteString(fmt.Sprintf("  Passed: %d\n", result.PassedCount))
	sb.WriteString(fmt.Sprintf("  Failed: %d\n", result.FailedCount))
	sb.WriteString(fmt.Sprintf("  Status: %s\n", status))
	sb.WriteString("============================================================\n")

	return sb.String()
}

func describeExpectation(exp scenario.Expectation) string {
	switch exp.Kind() {
	case "postgres":
		return exp.PostgresQuery
	case "redis":
		return fmt.Sprintf("%s %s", exp.RedisCheck, exp.RedisKey)
	default:
		return exp.Topic
	}
}

// formatDuration formats a duration as a human-readable string
func formatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}

	minutes := int(seconds / 60)
	remainingSeconds := seconds - float64(minutes*60)
	return fmt.Sprintf("%dm %.1fs", minutes, remainingSeconds)
}
