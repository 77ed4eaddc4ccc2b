// Package config assembles the daemon configuration from environment
// variables, an optional YAML file, and defaults — in that precedence —
// and hot-reloads the dynamic subset on file change.
package config

import (
	"fmt"
	"time"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/session"
)

// Target is one configured remote database server. The secret for it is
// never part of the configuration; clients present credentials per
// session.
type Target struct {
	Name       string `yaml:"name"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Namespace  string `yaml:"namespace"`
	UseTLS     bool   `yaml:"useTLS"`
	PathPrefix string `yaml:"pathPrefix"`
}

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8088".
	Listen string `yaml:"listen"`

	// Dynamic settings: re-applied on file change without restart.
	LogLevel       string        `yaml:"logLevel"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`

	SweepInterval    time.Duration `yaml:"sweepInterval"`
	ConnectTimeout   time.Duration `yaml:"connectTimeout"`
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// CORSOrigins are the allowed browser origins; empty disables CORS.
	CORSOrigins []string `yaml:"corsOrigins"`

	// RateLimit is requests per minute per client IP; 0 disables.
	RateLimit int `yaml:"rateLimit"`

	// OTLPEndpoint enables trace export when non-empty.
	OTLPEndpoint string `yaml:"otlpEndpoint"`

	Targets []Target `yaml:"targets"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:           ":8088",
		LogLevel:         "info",
		SessionTimeout:   session.DefaultTimeout,
		SweepInterval:    session.DefaultSweepInterval,
		ConnectTimeout:   10 * time.Second,
		OperationTimeout: 30 * time.Second,
		RateLimit:        240,
	}
}

// Validate rejects configurations the daemon cannot run with.
func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if cfg.SessionTimeout <= 0 {
		return fmt.Errorf("config: sessionTimeout must be positive, got %s", cfg.SessionTimeout)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("config: sweepInterval must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connectTimeout must be positive, got %s", cfg.ConnectTimeout)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("config: rateLimit must not be negative, got %d", cfg.RateLimit)
	}
	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.Name == "" {
			return fmt.Errorf("config: targets[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
		if t.Host == "" {
			return fmt.Errorf("config: target %q: host is required", t.Name)
		}
		if t.Port <= 0 || t.Port > 65535 {
			return fmt.Errorf("config: target %q: port %d out of range", t.Name, t.Port)
		}
	}
	return nil
}

// TargetByName looks up a configured target.
func (c Config) TargetByName(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}
