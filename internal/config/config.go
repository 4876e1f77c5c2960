/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how change notifications are distributed.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	HTTPBind        string
	HTTPPort        int
	DBBackend       DatabaseBackend
	DBDSN           string
	ShutdownTimeout time.Duration

	// Live progression
	LiveTick time.Duration // SHOWRUNNER_LIVE_TICK_SECONDS (default: 30)
	MaxDays  int           // SHOWRUNNER_MAX_DAYS (default: 3)

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis cache and bus
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool

	// Change notification fan-out
	EventBus       EventBusBackend
	NATSURL        string
	InstanceID     string
	LeaderElection bool // run the live monitor on one instance only

	LogBufferSize int // recent log entries kept for the diagnostics endpoint

	// Stage displays
	MQTTBrokerURL   string // empty disables the display publisher
	MQTTClientID    string
	MQTTTopicPrefix string

	EnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
// A .env file in the working directory (or SHOWRUNNER_ENV_FILE) is loaded
// first; variables already present in the environment win.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvAny([]string{"SHOWRUNNER_ENV_FILE"}, ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:     getEnvAny([]string{"SHOWRUNNER_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"SHOWRUNNER_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"SHOWRUNNER_HTTP_PORT", "PORT"}, 8080),
		DBBackend:       DatabaseBackend(getEnvAny([]string{"SHOWRUNNER_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:           getEnvAny([]string{"SHOWRUNNER_DB_DSN", "DATABASE_URL"}, ""),
		ShutdownTimeout: getEnvDurationAny([]string{"SHOWRUNNER_SHUTDOWN_TIMEOUT"}, 15*time.Second),

		LiveTick: time.Duration(getEnvIntAny([]string{"SHOWRUNNER_LIVE_TICK_SECONDS"}, 30)) * time.Second,
		MaxDays:  getEnvIntAny([]string{"SHOWRUNNER_MAX_DAYS"}, 3),

		TracingEnabled:    getEnvBoolAny([]string{"SHOWRUNNER_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SHOWRUNNER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SHOWRUNNER_TRACING_SAMPLE_RATE"}, 1.0),

		RedisAddr:     getEnvAny([]string{"SHOWRUNNER_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"SHOWRUNNER_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"SHOWRUNNER_REDIS_DB"}, 0),
		CacheEnabled:  getEnvBoolAny([]string{"SHOWRUNNER_CACHE_ENABLED"}, false),

		EventBus:   EventBusBackend(strings.ToLower(getEnvAny([]string{"SHOWRUNNER_EVENT_BUS"}, string(EventBusMemory)))),
		NATSURL:    getEnvAny([]string{"SHOWRUNNER_NATS_URL", "NATS_URL"}, ""),
		InstanceID: getEnvAny([]string{"SHOWRUNNER_INSTANCE_ID", "HOSTNAME"}, ""),

		LeaderElection: getEnvBoolAny([]string{"SHOWRUNNER_LEADER_ELECTION"}, false),
		LogBufferSize:  getEnvIntAny([]string{"SHOWRUNNER_LOG_BUFFER_SIZE"}, 2000),

		MQTTBrokerURL:   getEnvAny([]string{"SHOWRUNNER_MQTT_BROKER_URL", "MQTT_BROKER_URL"}, ""),
		MQTTClientID:    getEnvAny([]string{"SHOWRUNNER_MQTT_CLIENT_ID"}, "showrunner"),
		MQTTTopicPrefix: getEnvAny([]string{"SHOWRUNNER_MQTT_TOPIC_PREFIX"}, "showrunner"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SHOWRUNNER_DB_DSN or DATABASE_URL must be provided")
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis:
	case EventBusNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("SHOWRUNNER_NATS_URL must be provided when SHOWRUNNER_EVENT_BUS=nats")
		}
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.LiveTick <= 0 {
		return nil, fmt.Errorf("SHOWRUNNER_LIVE_TICK_SECONDS must be positive")
	}
	if cfg.MaxDays < 1 {
		return nil, fmt.Errorf("SHOWRUNNER_MAX_DAYS must be at least 1")
	}
	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("SHOWRUNNER_TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.EventBus != EventBusMemory && cfg.InstanceID == "" {
			return nil, fmt.Errorf("SHOWRUNNER_INSTANCE_ID is required in production when a distributed event bus is used")
		}
	}
	cfg.EnvWarnings = detectUnprefixedEnv()

	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func detectUnprefixedEnv() []string {
	keys := []string{"DB_BACKEND", "DB_DSN", "EVENT_BUS", "LIVE_TICK_SECONDS", "MAX_DAYS", "CACHE_ENABLED"}

	warnings := make([]string, 0, len(keys))
	for _, key := range keys {
		if os.Getenv(key) != "" && os.Getenv("SHOWRUNNER_"+key) == "" {
			warnings = append(warnings, fmt.Sprintf("env key %s is ignored; use SHOWRUNNER_%s", key, key))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny parses Go duration strings such as "15s".
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
		}
	}
	return def
}
