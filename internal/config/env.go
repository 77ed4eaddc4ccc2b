package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default. The chosen source is logged; values whose key looks sensitive
// are never logged verbatim.
func ParseString(key, defaultValue string) string {
	return parseStringWithLogger(log.WithComponent("config"), key, defaultValue)
}

func parseStringWithLogger(logger zerolog.Logger, key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		lowerKey := strings.ToLower(key)
		switch {
		case strings.Contains(lowerKey, "token") || strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "secret"):
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		case value == "":
			logger.Debug().
				Str("key", key).
				Str("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		default:
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	logger.Debug().
		Str("key", key).
		Str("default", defaultValue).
		Str("source", "default").
		Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the
// default, falling back on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			logger.Debug().
				Str("key", key).
				Int("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		}
		if i, err := strconv.Atoi(v); err == nil {
			logger.Debug().
				Str("key", key).
				Int("value", i).
				Str("source", "environment").
				Msg("using environment variable")
			return i
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Int("default", defaultValue).
		Str("source", "default").
		Msg("using default value")
	return defaultValue
}

// ParseBool reads a boolean ("true"/"false", "1"/"0") or returns the
// default.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			logger.Debug().
				Str("key", key).
				Bool("value", b).
				Str("source", "environment").
				Msg("using environment variable")
			return b
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
	}
	return defaultValue
}

// ParseDuration reads a Go duration ("5s", "30m") or returns the
// default.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok {
		if v == "" {
			logger.Debug().
				Str("key", key).
				Dur("default", defaultValue).
				Str("source", "default").
				Msg("using default value (environment variable is empty)")
			return defaultValue
		}
		if d, err := time.ParseDuration(v); err == nil {
			logger.Debug().
				Str("key", key).
				Dur("value", d).
				Str("source", "environment").
				Msg("using environment variable")
			return d
		}
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Dur("default", defaultValue).
		Str("source", "default").
		Msg("using default value")
	return defaultValue
}

// applyEnv overlays environment variables onto cfg. Environment wins
// over file and defaults.
func applyEnv(cfg Config) Config {
	cfg.Listen = ParseString("TABLED_LISTEN", cfg.Listen)
	cfg.LogLevel = ParseString("TABLED_LOG_LEVEL", cfg.LogLevel)
	cfg.SessionTimeout = ParseDuration("TABLED_SESSION_TIMEOUT", cfg.SessionTimeout)
	cfg.SweepInterval = ParseDuration("TABLED_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.ConnectTimeout = ParseDuration("TABLED_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.OperationTimeout = ParseDuration("TABLED_OPERATION_TIMEOUT", cfg.OperationTimeout)
	cfg.RateLimit = ParseInt("TABLED_RATE_LIMIT", cfg.RateLimit)
	cfg.OTLPEndpoint = ParseString("TABLED_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	if origins := ParseString("TABLED_CORS_ORIGINS", ""); origins != "" {
		parts := strings.Split(origins, ",")
		cfg.CORSOrigins = cfg.CORSOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, p)
			}
		}
	}
	return cfg
}
