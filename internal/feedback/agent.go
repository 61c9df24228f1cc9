package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/wtthornton/HomeIQ-sub015/pkg/config"
	"github.com/wtthornton/HomeIQ-sub015/pkg/mqtt"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

// Agent consumes suggestion feedback from MQTT and keeps the
// acceptance counters current.
type Agent struct {
	mqtt      mqtt.Client
	redis     redis.Client
	processor *Processor
	storage   *Storage
	cfg       *config.Config
	logger    *slog.Logger
}

// NewAgent creates a feedback agent with the given dependencies.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, db *sql.DB, cfg *config.Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		mqtt:      mqttClient,
		redis:     redisClient,
		processor: NewProcessor(logger),
		storage:   NewStorage(db, redisClient, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Start connects the agent and processes feedback until the context is
// cancelled.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting feedback agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress())

	// Connect to MQTT broker
	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// Verify Redis connection
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			a.logger.Warn("Redis unavailable, feedback mirror disabled", "error", err)
			// Not fatal - PostgreSQL remains authoritative
		}
	}

	if err := a.mqtt.Subscribe(a.cfg.FeedbackTopic, 0, a.handleFeedback); err != nil {
		return fmt.Errorf("failed to subscribe to feedback topic: %w", err)
	}

	a.logger.Info("Feedback agent started and ready to receive feedback",
		"topic", a.cfg.FeedbackTopic)

	// Block until context is cancelled
	<-ctx.Done()
	a.logger.Info("Feedback agent stopping")

	return nil
}

// Stop gracefully stops the feedback agent.
func (a *Agent) Stop() error {
	a.logger.Info("Stopping feedback agent")

	a.mqtt.Disconnect()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("Error closing Redis connection", "error", err)
			return err
		}
	}

	a.logger.Info("Feedback agent stopped")
	return nil
}

// handleFeedback processes one incoming feedback message.
func (a *Agent) handleFeedback(msg mqtt.Message) {
	a.logger.Debug("Received feedback message", "topic", msg.Topic(), "size", len(msg.Payload()))

	event, err := a.processor.ParseEvent(msg.Payload())
	if err != nil {
		a.logger.Error("Failed to parse feedback", "topic", msg.Topic(), "error", err)
		return
	}

	ctx := context.Background()

	if err := a.storage.Record(ctx, event); err != nil {
		a.logger.Error("Failed to record feedback",
			"pattern_type", event.PatternType,
			"band", event.Band(),
			"error", err)
		return
	}

	a.logger.Info("Feedback recorded",
		"pattern_type", event.PatternType,
		"band", event.Band(),
		"accepted", event.Accepted)
}
