// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/candid/config.yaml",
	"/etc/candid/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CANDID_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping them to
// config keys: CANDID_SYNC_POLL_INTERVAL -> sync.poll_interval.
const envPrefix = "CANDID_"

// defaultConfig returns a Config with all defaults applied. These are
// overridden by the config file and then by environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			URL:            "",
			MaxConns:       10,
			MinConns:       2,
			MigrateOnStart: true,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		Polis: PolisConfig{
			Enabled: false,
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:              false,
			PollInterval:         10 * time.Second,
			BatchSize:            20,
			MaxRetries:           5,
			BaseBackoff:          30 * time.Second,
			LongBackoffFloor:     300 * time.Second,
			CleanupRetentionDays: 7,
			CleanupInterval:      time.Hour,
			ClaimLease:           15 * time.Minute,
		},
		Trainer: TrainerConfig{
			Enabled:            false,
			StartupDelay:       30 * time.Second,
			PassInterval:       15 * time.Minute,
			MinVoters:          7,
			MinVotes:           20,
			LearningRate:       0.02,
			Regularization:     0.01,
			PullRegularization: 0.1,
			MaxEpochs:          500,
			ConvergenceTol:     1e-5,
		},
		Scheduler: SchedulerConfig{
			Enabled:                false,
			CheckInterval:          time.Hour,
			ActivityWindowMonths:   6,
			CleanupDaysAfterExpiry: 30,
		},
		NLP: NLPConfig{
			Enabled:      false,
			TextTimeout:  10 * time.Second,
			ImageTimeout: 60 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps CANDID_SECTION_FIELD_NAME to section.field_name.
// Section names are single words, so only the first underscore becomes a dot.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
