package synergy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wtthornton/HomeIQ-sub015/pkg/config"
	"github.com/wtthornton/HomeIQ-sub015/pkg/mqtt"
	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

// suggestionPublishLimit caps how many pairs each area's suggestion
// message carries.
const suggestionPublishLimit = 10

// Agent drives the engine over MQTT: training triggers, prediction
// requests, rollback requests and pattern batches in; completion reports,
// prediction responses and per-area suggestions out. Training also runs
// on a periodic ticker.
type Agent struct {
	mqtt   mqtt.Client
	engine *Engine
	cfg    *config.Config
	logger *slog.Logger

	trainRequests chan TrainOptions
}

// NewAgent creates a synergy agent with the given dependencies.
func NewAgent(mqttClient mqtt.Client, engine *Engine, cfg *config.Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		mqtt:          mqttClient,
		engine:        engine,
		cfg:           cfg,
		logger:        logger,
		trainRequests: make(chan TrainOptions, 4),
	}
}

// Start connects to the broker, restores the last saved model, subscribes
// to the control topics and blocks until the context is cancelled,
// running training on explicit triggers and on the configured interval.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting synergy agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress())

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.engine.LoadCurrent(); err != nil {
		a.logger.Warn("Failed to restore saved model", "error", err)
		// Not fatal - predictions fall back to the graph heuristic
	}

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{mqtt.TopicSynergyTrain, a.handleTrainRequest},
		{mqtt.TopicSynergyLearn, a.handleLearnRequest},
		{mqtt.TopicPredictRequest, a.handlePredictRequest},
		{mqtt.TopicSynergyRollback, a.handleRollbackRequest},
		{mqtt.TopicPatternsDetected, a.handlePatternBatch},
	}
	for _, sub := range subscriptions {
		if err := a.mqtt.Subscribe(sub.topic, 0, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
	}

	a.logger.Info("Synergy agent started",
		"training_interval_sec", a.cfg.TrainingIntervalSec,
		"model_dir", a.cfg.ModelDir)

	// A nil ticker channel never fires, which disables periodic training
	// when the interval is zero (test scenarios trigger explicitly).
	var tick <-chan time.Time
	if interval := time.Duration(a.cfg.TrainingIntervalSec) * time.Second; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case opts := <-a.trainRequests:
			a.runTraining(ctx, opts)
		case <-tick:
			a.runTraining(ctx, TrainOptions{})
		case <-ctx.Done():
			a.logger.Info("Synergy agent stopping")
			return nil
		}
	}
}

// Stop disconnects the agent from the broker.
func (a *Agent) Stop() error {
	a.logger.Info("Stopping synergy agent")
	a.mqtt.Disconnect()
	return nil
}

// runTraining executes one training cycle, publishes the completion
// report and, on success, refreshes and publishes the per-area
// suggestion leaderboards.
func (a *Agent) runTraining(ctx context.Context, opts TrainOptions) {
	report, err := a.engine.Train(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrTrainingInProgress) {
			a.logger.Warn("Training request rejected", "reason", err)
		} else {
			a.logger.Error("Training failed", "error", err)
		}
		a.publishTrainingCompleted(TrainingReport{Status: "failed", Reason: err.Error()})
		return
	}

	a.publishTrainingCompleted(report)
	if report.Status != "complete" {
		return
	}

	refreshed, err := a.engine.RefreshSuggestions(ctx)
	if err != nil {
		a.logger.Error("Failed to refresh suggestions", "error", err)
		return
	}
	if refreshed > 0 {
		a.publishSuggestions(ctx)
	}
}

// handleTrainRequest queues an explicit training trigger. Payload is
// optional JSON: {"epochs": 100, "force": true}.
func (a *Agent) handleTrainRequest(msg mqtt.Message) {
	var req struct {
		Epochs int  `json:"epochs"`
		Force  bool `json:"force"`
	}
	if len(msg.Payload()) > 0 {
		if err := json.Unmarshal(msg.Payload(), &req); err != nil {
			a.logger.Error("Failed to parse training request", "error", err)
			return
		}
	}

	a.logger.Info("Received training trigger", "epochs", req.Epochs, "force", req.Force)

	select {
	case a.trainRequests <- TrainOptions{Epochs: req.Epochs, Force: req.Force}:
	default:
		a.logger.Warn("Training trigger dropped, queue full")
	}
}

// predictResponse is the payload published on the request's response
// topic; exactly one of Result or Error is set.
type predictResponse struct {
	RequestID string         `json:"request_id"`
	Result    *ScoredSynergy `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// handlePredictRequest scores a device pair and publishes the result on
// automation/synergy/predict/response/{request_id}. Payload:
// {"request_id": "...", "device_a": "...", "device_b": "..."}.
func (a *Agent) handlePredictRequest(msg mqtt.Message) {
	var req struct {
		RequestID string `json:"request_id"`
		DeviceA   string `json:"device_a"`
		DeviceB   string `json:"device_b"`
	}
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		a.logger.Error("Failed to parse prediction request", "error", err)
		return
	}
	if req.RequestID == "" {
		a.logger.Error("Prediction request without request_id", "topic", msg.Topic())
		return
	}

	resp := predictResponse{RequestID: req.RequestID}
	scored, err := a.engine.Predict(context.Background(), req.DeviceA, req.DeviceB)
	if err != nil {
		a.logger.Warn("Prediction failed",
			"device_a", req.DeviceA,
			"device_b", req.DeviceB,
			"error", err)
		resp.Error = err.Error()
	} else {
		resp.Result = &scored
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		a.logger.Error("Failed to encode prediction response", "error", err)
		return
	}
	if err := a.mqtt.Publish(mqtt.PredictResponseTopic(req.RequestID), 0, false, payload); err != nil {
		a.logger.Error("Failed to publish prediction response",
			"request_id", req.RequestID,
			"error", err)
	}
}

// handleRollbackRequest rolls the serving model back to a stored version
// and publishes the outcome. Payload: {"version": "v20260101120000-..."}.
func (a *Agent) handleRollbackRequest(msg mqtt.Message) {
	var req struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		a.logger.Error("Failed to parse rollback request", "error", err)
		return
	}
	if req.Version == "" {
		a.logger.Error("Rollback request without version")
		return
	}

	result := map[string]interface{}{
		"version": req.Version,
		"status":  "complete",
	}
	if err := a.engine.Rollback(context.Background(), req.Version); err != nil {
		a.logger.Error("Rollback failed", "version", req.Version, "error", err)
		result["status"] = "failed"
		result["reason"] = err.Error()
	}

	payload, _ := json.Marshal(result)
	if err := a.mqtt.Publish(mqtt.TopicRollbackCompleted, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish rollback result", "error", err)
	}
}

// handleLearnRequest applies labeled pairs to the loaded model without a
// full retrain and publishes the outcome. Payload:
// {"pairs": [{"device_a": "...", "device_b": "...", "label": 1}]}.
func (a *Agent) handleLearnRequest(msg mqtt.Message) {
	var req struct {
		Pairs []ontology.TrainingPair `json:"pairs"`
	}
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		a.logger.Error("Failed to parse learn request", "error", err)
		return
	}
	if len(req.Pairs) == 0 {
		a.logger.Error("Learn request without pairs")
		return
	}

	result := map[string]interface{}{
		"status": "complete",
		"pairs":  len(req.Pairs),
	}
	version, err := a.engine.LearnIncremental(context.Background(), req.Pairs)
	if err != nil {
		if errors.Is(err, ErrTrainingInProgress) {
			a.logger.Warn("Learn request rejected", "reason", err)
		} else {
			a.logger.Error("Incremental update failed", "error", err)
		}
		result["status"] = "failed"
		result["reason"] = err.Error()
	} else {
		result["version"] = version
	}

	payload, _ := json.Marshal(result)
	if err := a.mqtt.Publish(mqtt.TopicLearnCompleted, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish learn result", "error", err)
	}
}

// handlePatternBatch feeds detected patterns through the quality pipeline
// and publishes the batch summary. Payload: {"patterns": [...]}.
func (a *Agent) handlePatternBatch(msg mqtt.Message) {
	var req struct {
		Patterns []*ontology.Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		a.logger.Error("Failed to parse pattern batch", "error", err)
		return
	}
	if len(req.Patterns) == 0 {
		return
	}

	report := a.engine.ProcessPatterns(context.Background(), req.Patterns)

	summary := map[string]interface{}{
		"input":          report.Input,
		"deduplicated":   report.Deduplicated,
		"promoted":       report.Promoted,
		"quality_score":  report.Validation.QualityScore,
		"contradictions": report.Validation.Contradictions,
		"reinforcements": report.Validation.Reinforcements,
		"redundancies":   report.Validation.Redundancies,
	}
	payload, _ := json.Marshal(summary)
	if err := a.mqtt.Publish(mqtt.TopicPatternQuality, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish pattern quality summary", "error", err)
	}
}

// publishTrainingCompleted publishes the training report.
func (a *Agent) publishTrainingCompleted(report TrainingReport) {
	payload, err := json.Marshal(report)
	if err != nil {
		a.logger.Error("Failed to encode training report", "error", err)
		return
	}
	if err := a.mqtt.Publish(mqtt.TopicTrainingCompleted, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish training report", "error", err)
		return
	}
	a.logger.Info("Published training report", "status", report.Status, "version", report.Version)
}

// publishSuggestions pushes each area's refreshed leaderboard to its
// suggestion topic.
func (a *Agent) publishSuggestions(ctx context.Context) {
	for _, area := range a.engine.Areas() {
		suggestions, err := a.engine.TopSuggestions(ctx, area, suggestionPublishLimit)
		if err != nil {
			a.logger.Warn("Failed to read suggestions", "area", area, "error", err)
			continue
		}
		if len(suggestions) == 0 {
			continue
		}

		payload, err := json.Marshal(map[string]interface{}{
			"area":        area,
			"suggestions": suggestions,
		})
		if err != nil {
			a.logger.Error("Failed to encode suggestions", "area", area, "error", err)
			continue
		}
		if err := a.mqtt.Publish(mqtt.SuggestionTopic(area), 0, false, payload); err != nil {
			a.logger.Warn("Failed to publish suggestions", "area", area, "error", err)
		}
	}
}
