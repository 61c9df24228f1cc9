package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a HomeIQ agent
type Config struct {
	// MQTT configuration
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTPort     int    `yaml:"mqtt_port"`
	MQTTUser     string `yaml:"mqtt_user"`
	MQTTPassword string `yaml:"mqtt_password"`
	MQTTClientID string `yaml:"mqtt_client_id"`

	// Redis configuration
	RedisHost     string `yaml:"redis_host"`
	RedisPort     int    `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Postgres configuration
	PostgresHost               string `yaml:"postgres_host"`
	PostgresPort               int    `yaml:"postgres_port"`
	PostgresUser               string `yaml:"postgres_user"`
	PostgresPassword           string `yaml:"postgres_password"`
	PostgresDB                 string `yaml:"postgres_db"`
	PostgresSSLMode            string `yaml:"postgres_ssl_mode"`
	PostgresMaxConnections     int    `yaml:"postgres_max_connections"`
	PostgresMaxIdleConnections int    `yaml:"postgres_max_idle_connections"`
	PostgresConnMaxLifetimeMin int    `yaml:"postgres_conn_max_lifetime_min"`

	// Service configuration
	ServiceName string `yaml:"service_name"`
	HealthPort  int    `yaml:"health_port"`
	LogLevel    string `yaml:"log_level"`

	// Geographic location, used for daylight-aware synthetic labels
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`

	// Synergy agent configuration
	ModelDir            string  `yaml:"model_dir"`
	TrainingIntervalSec int     `yaml:"training_interval_sec"`
	MinTrainingPairs    int     `yaml:"min_training_pairs"`
	NegativeRatio       float64 `yaml:"negative_ratio"`
	HiddenDim           int     `yaml:"hidden_dim"`
	NumLayers           int     `yaml:"num_layers"`
	Epochs              int     `yaml:"epochs"`
	Patience            int     `yaml:"patience"`
	LearningRate        float64 `yaml:"learning_rate"`
	ValidationSplit     float64 `yaml:"validation_split"`
	TrainingSeed        int64   `yaml:"training_seed"`
	MaxCandidatePairs   int     `yaml:"max_candidate_pairs"`
	ScoreCacheTTLSec    int     `yaml:"score_cache_ttl_sec"`

	// Feedback agent configuration
	FeedbackTopic         string `yaml:"feedback_topic"`
	CalibrationMinSamples int    `yaml:"calibration_min_samples"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:   "localhost",
		MQTTPort:     1883,
		MQTTUser:     "",
		MQTTPassword: "",
		MQTTClientID: "",

		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		PostgresHost:               "localhost",
		PostgresPort:               5432,
		PostgresUser:               "homeiq",
		PostgresPassword:           "",
		PostgresDB:                 "homeiq",
		PostgresSSLMode:            "disable",
		PostgresMaxConnections:     10,
		PostgresMaxIdleConnections: 5,
		PostgresConnMaxLifetimeMin: 30,

		ServiceName: "homeiq-agent",
		HealthPort:  8080,
		LogLevel:    "info",

		// Helsinki coordinates
		Latitude:  60.1695,
		Longitude: 24.9354,

		ModelDir:            "./models",
		TrainingIntervalSec: 3600,
		MinTrainingPairs:    10,
		NegativeRatio:       1.0,
		HiddenDim:           32,
		NumLayers:           2,
		Epochs:              50,
		Patience:            5,
		LearningRate:        0.05,
		ValidationSplit:     0.2,
		TrainingSeed:        1,
		MaxCandidatePairs:   200,
		ScoreCacheTTLSec:    300,

		FeedbackTopic:         "automation/synergy/feedback",
		CalibrationMinSamples: 10,
	}
}

// LoadFromEnv loads configuration from environment variables with HOMEIQ_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("HOMEIQ_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("HOMEIQ_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("HOMEIQ_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("HOMEIQ_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("HOMEIQ_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("HOMEIQ_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("HOMEIQ_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("HOMEIQ_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("HOMEIQ_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Postgres configuration
	if v := os.Getenv("HOMEIQ_POSTGRES_HOST"); v != "" {
		c.PostgresHost = v
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.PostgresPort = port
		}
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_USER"); v != "" {
		c.PostgresUser = v
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_PASSWORD"); v != "" {
		c.PostgresPassword = v
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_DB"); v != "" {
		c.PostgresDB = v
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_SSL_MODE"); v != "" {
		c.PostgresSSLMode = v
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_MAX_CONNECTIONS"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			c.PostgresMaxConnections = max
		}
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_MAX_IDLE_CONNECTIONS"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			c.PostgresMaxIdleConnections = max
		}
	}
	if v := os.Getenv("HOMEIQ_POSTGRES_CONN_MAX_LIFETIME_MIN"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			c.PostgresConnMaxLifetimeMin = min
		}
	}

	// Service configuration
	if v := os.Getenv("HOMEIQ_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("HOMEIQ_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("HOMEIQ_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Geographic location
	if v := os.Getenv("HOMEIQ_LATITUDE"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			c.Latitude = lat
		}
	}
	if v := os.Getenv("HOMEIQ_LONGITUDE"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			c.Longitude = lon
		}
	}

	// Synergy agent configuration
	if v := os.Getenv("HOMEIQ_MODEL_DIR"); v != "" {
		c.ModelDir = v
	}
	if v := os.Getenv("HOMEIQ_TRAINING_INTERVAL_SEC"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil {
			c.TrainingIntervalSec = interval
		}
	}
	if v := os.Getenv("HOMEIQ_MIN_TRAINING_PAIRS"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			c.MinTrainingPairs = min
		}
	}
	if v := os.Getenv("HOMEIQ_NEGATIVE_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			c.NegativeRatio = ratio
		}
	}
	if v := os.Getenv("HOMEIQ_HIDDEN_DIM"); v != "" {
		if dim, err := strconv.Atoi(v); err == nil {
			c.HiddenDim = dim
		}
	}
	if v := os.Getenv("HOMEIQ_NUM_LAYERS"); v != "" {
		if layers, err := strconv.Atoi(v); err == nil {
			c.NumLayers = layers
		}
	}
	if v := os.Getenv("HOMEIQ_EPOCHS"); v != "" {
		if epochs, err := strconv.Atoi(v); err == nil {
			c.Epochs = epochs
		}
	}
	if v := os.Getenv("HOMEIQ_PATIENCE"); v != "" {
		if patience, err := strconv.Atoi(v); err == nil {
			c.Patience = patience
		}
	}
	if v := os.Getenv("HOMEIQ_LEARNING_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.LearningRate = rate
		}
	}
	if v := os.Getenv("HOMEIQ_VALIDATION_SPLIT"); v != "" {
		if split, err := strconv.ParseFloat(v, 64); err == nil {
			c.ValidationSplit = split
		}
	}
	if v := os.Getenv("HOMEIQ_TRAINING_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.TrainingSeed = seed
		}
	}
	if v := os.Getenv("HOMEIQ_MAX_CANDIDATE_PAIRS"); v != "" {
		if max, err := strconv.Atoi(v); err == nil {
			c.MaxCandidatePairs = max
		}
	}
	if v := os.Getenv("HOMEIQ_SCORE_CACHE_TTL_SEC"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			c.ScoreCacheTTLSec = ttl
		}
	}

	// Feedback agent configuration
	if v := os.Getenv("HOMEIQ_FEEDBACK_TOPIC"); v != "" {
		c.FeedbackTopic = v
	}
	if v := os.Getenv("HOMEIQ_CALIBRATION_MIN_SAMPLES"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			c.CalibrationMinSamples = min
		}
	}
}

// LoadFromFile applies values from a YAML config file. Fields absent
// from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromFlags parses command-line flags and overrides config values.
// A YAML file given with --config is applied before the remaining flags
// are read, so explicit flags win over file values.
func (c *Config) LoadFromFlags() error {
	// First pass picks up --config only, ignoring everything else.
	pre := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	configFile := pre.String("config", "", "Path to YAML config file")
	_ = pre.Parse(os.Args[1:])

	if *configFile != "" {
		if err := c.LoadFromFile(*configFile); err != nil {
			return err
		}
	}

	pflag.String("config", *configFile, "Path to YAML config file")

	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Postgres flags
	pflag.StringVar(&c.PostgresHost, "postgres-host", c.PostgresHost, "Postgres hostname")
	pflag.IntVar(&c.PostgresPort, "postgres-port", c.PostgresPort, "Postgres port")
	pflag.StringVar(&c.PostgresUser, "postgres-user", c.PostgresUser, "Postgres username")
	pflag.StringVar(&c.PostgresPassword, "postgres-password", c.PostgresPassword, "Postgres password")
	pflag.StringVar(&c.PostgresDB, "postgres-db", c.PostgresDB, "Postgres database name")
	pflag.StringVar(&c.PostgresSSLMode, "postgres-ssl-mode", c.PostgresSSLMode, "Postgres SSL mode")
	pflag.IntVar(&c.PostgresMaxConnections, "postgres-max-connections", c.PostgresMaxConnections, "Postgres connection pool size")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Geographic location flags
	pflag.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for daylight calculation")
	pflag.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for daylight calculation")

	// Synergy agent flags
	pflag.StringVar(&c.ModelDir, "model-dir", c.ModelDir, "Directory for model version artifacts")
	pflag.IntVar(&c.TrainingIntervalSec, "training-interval", c.TrainingIntervalSec, "Periodic retraining interval in seconds")
	pflag.IntVar(&c.MinTrainingPairs, "min-training-pairs", c.MinTrainingPairs, "Minimum training pairs required to train")
	pflag.Float64Var(&c.NegativeRatio, "negative-ratio", c.NegativeRatio, "Negative samples per positive pair")
	pflag.IntVar(&c.HiddenDim, "hidden-dim", c.HiddenDim, "Scorer hidden layer width")
	pflag.IntVar(&c.NumLayers, "num-layers", c.NumLayers, "Scorer hidden layer count")
	pflag.IntVar(&c.Epochs, "epochs", c.Epochs, "Maximum training epochs")
	pflag.IntVar(&c.Patience, "patience", c.Patience, "Early-stop patience in epochs")
	pflag.Float64Var(&c.LearningRate, "learning-rate", c.LearningRate, "SGD learning rate")
	pflag.Float64Var(&c.ValidationSplit, "validation-split", c.ValidationSplit, "Fraction of pairs held out for validation")
	pflag.Int64Var(&c.TrainingSeed, "training-seed", c.TrainingSeed, "Seed for shuffling and negative sampling")
	pflag.IntVar(&c.MaxCandidatePairs, "max-candidate-pairs", c.MaxCandidatePairs, "Maximum candidate pairs scored per prediction sweep")
	pflag.IntVar(&c.ScoreCacheTTLSec, "score-cache-ttl", c.ScoreCacheTTLSec, "Prediction score cache TTL in seconds")

	// Feedback agent flags
	pflag.StringVar(&c.FeedbackTopic, "feedback-topic", c.FeedbackTopic, "MQTT topic carrying suggestion feedback")
	pflag.IntVar(&c.CalibrationMinSamples, "calibration-min-samples", c.CalibrationMinSamples, "Minimum feedback samples before calibration trusts a band")

	pflag.Parse()
	return nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("Postgres host is required")
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("Postgres port must be between 1 and 65535")
	}
	if c.PostgresDB == "" {
		return fmt.Errorf("Postgres database name is required")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.ModelDir == "" {
		return fmt.Errorf("Model directory is required")
	}
	if c.HiddenDim < 1 {
		return fmt.Errorf("hidden dim must be at least 1, got %d", c.HiddenDim)
	}
	if c.NumLayers < 1 {
		return fmt.Errorf("num layers must be at least 1, got %d", c.NumLayers)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.ValidationSplit < 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation split must be in [0, 1), got %g", c.ValidationSplit)
	}
	if c.NegativeRatio < 0 {
		return fmt.Errorf("negative ratio must not be negative, got %g", c.NegativeRatio)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresConnectionString returns a lib/pq connection string
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDB, c.PostgresSSLMode)
}
