package mqtt

import "fmt"

// Topic constants for the synergy pipeline
const (
	// Control topics (input)
	TopicSynergyTrain    = "automation/synergy/train"
	TopicSynergyLearn    = "automation/synergy/learn"
	TopicSynergyRollback = "automation/synergy/rollback"

	// Prediction request/response topics
	TopicPredictRequest      = "automation/synergy/predict/request"
	TopicPredictResponseBase = "automation/synergy/predict/response"

	// Training lifecycle topics (output)
	TopicTrainingCompleted = "automation/synergy/training/completed"
	TopicLearnCompleted    = "automation/synergy/learn/completed"
	TopicRollbackCompleted = "automation/synergy/rollback/completed"

	// Pattern pipeline topics: detectors publish batches to detected,
	// the synergy agent answers with a quality summary
	TopicPatternsDetected = "automation/patterns/detected"
	TopicPatternQuality   = "automation/patterns/quality"

	// Suggestion feedback from the UI layer (input to the feedback agent)
	TopicSynergyFeedback = "automation/synergy/feedback"

	// Scored suggestion output
	TopicSuggestionBase = "automation/synergy/suggestion"
)

// PredictResponseTopic constructs the response topic for a prediction request
// Pattern: automation/synergy/predict/response/{request_id}
func PredictResponseTopic(requestID string) string {
	return fmt.Sprintf("%s/%s", TopicPredictResponseBase, requestID)
}

// SuggestionTopic constructs the suggestion topic for a specific area
// Pattern: automation/synergy/suggestion/{area}
func SuggestionTopic(area string) string {
	if area == "" {
		area = "unassigned"
	}
	return fmt.Sprintf("%s/%s", TopicSuggestionBase, area)
}
