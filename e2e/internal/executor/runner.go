// Package executor orchestrates end-to-end scenario runs against a
// live MQTT/Redis/Postgres stack with the synergy agents attached.
package executor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/checker"
	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/observer"
	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/reporter"
	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/scenario"
)

// Runner executes one scenario: seed, play, observe, check.
type Runner struct {
	mqttBroker  string
	redisHost   string
	postgresDSN string
	logger      *log.Logger

	observer        *observer.Observer
	player          *MQTTPlayer
	redisClient     *redis.Client
	postgresChecker *checker.PostgresChecker
}

// NewRunner creates a test runner. postgresDSN may be empty when the
// scenario neither seeds the database nor checks it.
func NewRunner(mqttBroker, redisHost, postgresDSN string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		mqttBroker:  mqttBroker,
		redisHost:   redisHost,
		postgresDSN: postgresDSN,
		logger:      logger,
	}
}

// Run executes a scenario and returns its result plus the timeline of
// everything that happened.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.TestResult, []reporter.TimelineEvent, error) {
	r.logger.Printf("Starting scenario: %s", s.Name)
	r.logger.Printf("Description: %s", s.Description)

	if err := r.initialize(s); err != nil {
		return nil, nil, fmt.Errorf("initialization failed: %w", err)
	}
	defer r.cleanup()

	// Install fixtures before the agents see any traffic
	if r.postgresChecker != nil {
		if err := SeedDatabase(ctx, r.postgresChecker.DB(), s.Seed, r.logger); err != nil {
			return nil, nil, fmt.Errorf("seeding failed: %w", err)
		}
	}

	// Give the agents time to connect and subscribe
	r.logger.Printf("Waiting 5 seconds for agents to start up...")
	time.Sleep(5 * time.Second)

	if err := r.observer.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start observer: %w", err)
	}

	startTime := time.Now()
	var timelineEvents []reporter.TimelineEvent

	// Play the steps on schedule
	for _, step := range s.Steps {
		WaitUntil(startTime, step.Time)
		elapsed := GetElapsed(startTime)

		r.logger.Printf("[%.2fs] Publishing step: %s (%s)", elapsed, step.Topic, step.Description)

		if err := r.player.PublishStep(step); err != nil {
			return nil, nil, fmt.Errorf("failed to publish step: %w", err)
		}

		timelineEvents = append(timelineEvents, reporter.TimelineEvent{
			Elapsed:     elapsed,
			Layer:       "step",
			Description: fmt.Sprintf("%s (%s)", step.Topic, step.Description),
			IsCheck:     false,
		})
	}

	for _, wait := range s.Wait {
		WaitUntil(startTime, wait.Time)
		elapsed := GetElapsed(startTime)

		r.logger.Printf("[%.2fs] Wait: %s", elapsed, wait.Description)

		timelineEvents = append(timelineEvents, reporter.TimelineEvent{
			Elapsed:     elapsed,
			Layer:       "wait",
			Description: wait.Description,
			IsCheck:     false,
		})
	}

	// Check expectations in time order across all layers
	type layerExp struct {
		layer string
		exp   scenario.Expectation
	}
	var allExpectations []layerExp
	for layer, exps := range s.Expectations {
		for _, exp := range exps {
			allExpectations = append(allExpectations, layerExp{layer, exp})
		}
	}
	sort.SliceStable(allExpectations, func(i, j int) bool {
		return allExpectations[i].exp.Time < allExpectations[j].exp.Time
	})

	var expectationResults []scenario.ExpectationResult
	for _, le := range allExpectations {
		WaitUntil(startTime, le.exp.Time)
		elapsed := GetElapsed(startTime)

		checkDesc := r.describeExpectation(le.exp)
		r.logger.Printf("[%.2fs] Checking expectation: %s - %s", elapsed, le.layer, checkDesc)

		passed, reason, actualPayload := r.checkExpectation(ctx, le.exp)

		expectationResults = append(expectationResults, scenario.ExpectationResult{
			Layer:         le.layer,
			Expectation:   le.exp,
			Passed:        passed,
			Reason:        reason,
			ActualTopic:   le.exp.Topic,
			ActualPayload: actualPayload,
		})

		if passed {
			r.logger.Printf("[%.2fs] PASS", elapsed)
		} else {
			r.logger.Printf("[%.2fs] FAIL: %s", elapsed, reason)
		}

		timelineEvents = append(timelineEvents, reporter.TimelineEvent{
			Elapsed:     elapsed,
			Layer:       le.layer,
			Description: checkDesc,
			Success:     passed,
			IsCheck:     true,
		})
	}

	endTime := time.Now()

	passedCount := 0
	failedCount := 0
	for _, result := range expectationResults {
		if result.Passed {
			passedCount++
		} else {
			failedCount++
		}
	}

	testResult := &scenario.TestResult{
		Scenario:     s,
		StartTime:    startTime,
		EndTime:      endTime,
		Passed:       failedCount == 0,
		PassedCount:  passedCount,
		FailedCount:  failedCount,
		Expectations: expectationResults,
	}

	return testResult, timelineEvents, nil
}

// checkExpectation routes an expectation to the layer that can verify it.
func (r *Runner) checkExpectation(ctx context.Context, exp scenario.Expectation) (bool, string, interface{}) {
	switch exp.Kind() {
	case "postgres":
		if r.postgresChecker == nil {
			return false, "scenario has postgres expectations but no postgres DSN was configured", nil
		}
		if err := r.postgresChecker.CheckQuery(ctx, exp.PostgresQuery, exp.PostgresExpected); err != nil {
			return false, err.Error(), nil
		}
		return true, "", exp.PostgresExpected

	case "redis":
		return checker.CheckRedisExpectation(ctx, r.redisClient, exp)

	default:
		return checker.CheckMQTTExpectation(exp, r.observer.GetAllMessages())
	}
}

func (r *Runner) describeExpectation(exp scenario.Expectation) string {
	switch exp.Kind() {
	case "postgres":
		return "postgres query"
	case "redis":
		return fmt.Sprintf("redis %s %s", exp.RedisCheck, exp.RedisKey)
	default:
		return exp.Topic
	}
}

// initialize sets up connections
func (r *Runner) initialize(s *scenario.Scenario) error {
	r.observer = observer.NewObserver(r.mqttBroker, r.logger)

	player, err := NewMQTTPlayer(r.mqttBroker, r.logger)
	if err != nil {
		return fmt.Errorf("failed to create MQTT player: %w", err)
	}
	r.player = player

	r.redisClient = redis.NewClient(&redis.Options{
		Addr: r.redisHost,
	})

	if err := r.redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.Printf("Connected to Redis at %s", r.redisHost)

	if r.postgresDSN != "" {
		postgresChecker, err := checker.NewPostgresChecker(r.postgresDSN, r.logger)
		if err != nil {
			return fmt.Errorf("failed to create Postgres checker: %w", err)
		}
		r.postgresChecker = postgresChecker
		r.logger.Printf("Connected to Postgres")
	} else if len(s.Seed.Entities) > 0 || len(s.Seed.Synergies) > 0 {
		return fmt.Errorf("scenario has a database seed but no postgres DSN was configured")
	}

	return nil
}

// cleanup closes all connections
func (r *Runner) cleanup() {
	if r.observer != nil {
		r.observer.Stop()
	}
	if r.player != nil {
		r.player.Close()
	}
	if r.redisClient != nil {
		r.redisClient.Close()
	}
	if r.postgresChecker != nil {
		r.postgresChecker.Close()
	}
}

// SaveCapture saves the MQTT capture to a file
func (r *Runner) SaveCapture(filename string) error {
	if r.observer == nil {
		return fmt.Errorf("observer not initialized")
	}
	return r.observer.SaveCapture(filename)
}
