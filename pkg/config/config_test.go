package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults pass", func(c *Config) {}, ""},
		{"missing broker", func(c *Config) { c.MQTTBroker = "" }, "MQTT broker"},
		{"mqtt port out of range", func(c *Config) { c.MQTTPort = 70000 }, "MQTT port"},
		{"redis port zero", func(c *Config) { c.RedisPort = 0 }, "Redis port"},
		{"missing postgres db", func(c *Config) { c.PostgresDB = "" }, "Postgres database"},
		{"health port negative", func(c *Config) { c.HealthPort = -1 }, "Health port"},
		{"missing model dir", func(c *Config) { c.ModelDir = "" }, "Model directory"},
		{"hidden dim zero", func(c *Config) { c.HiddenDim = 0 }, "hidden dim"},
		{"num layers zero", func(c *Config) { c.NumLayers = 0 }, "num layers"},
		{"learning rate zero", func(c *Config) { c.LearningRate = 0 }, "learning rate"},
		{"validation split too high", func(c *Config) { c.ValidationSplit = 1.0 }, "validation split"},
		{"negative ratio below zero", func(c *Config) { c.NegativeRatio = -0.5 }, "negative ratio"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("mqtt_broker: mosquitto\nmodel_dir: /data/models\nepochs: 80\nlatitude: 52.52\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile() = %v", err)
	}

	if cfg.MQTTBroker != "mosquitto" {
		t.Errorf("MQTTBroker = %q, want %q", cfg.MQTTBroker, "mosquitto")
	}
	if cfg.ModelDir != "/data/models" {
		t.Errorf("ModelDir = %q, want %q", cfg.ModelDir, "/data/models")
	}
	if cfg.Epochs != 80 {
		t.Errorf("Epochs = %d, want 80", cfg.Epochs)
	}
	if cfg.Latitude != 52.52 {
		t.Errorf("Latitude = %v, want 52.52", cfg.Latitude)
	}

	// Fields absent from the file keep their defaults.
	if cfg.MQTTPort != 1883 {
		t.Errorf("MQTTPort = %d, want default 1883", cfg.MQTTPort)
	}

	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromFile() on a missing file = nil, want error")
	}
}

func TestAddressHelpers(t *testing.T) {
	cfg := NewConfig()
	cfg.MQTTBroker = "broker.local"
	cfg.MQTTPort = 8883
	cfg.RedisHost = "cache.local"
	cfg.RedisPort = 6380

	if got := cfg.MQTTAddress(); got != "tcp://broker.local:8883" {
		t.Errorf("MQTTAddress() = %q", got)
	}
	if got := cfg.RedisAddress(); got != "cache.local:6380" {
		t.Errorf("RedisAddress() = %q", got)
	}
	if got := cfg.PostgresConnectionString(); !strings.Contains(got, "dbname=homeiq") || !strings.Contains(got, "sslmode=disable") {
		t.Errorf("PostgresConnectionString() = %q", got)
	}
}
