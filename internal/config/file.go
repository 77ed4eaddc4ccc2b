package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, overlaid by the
// YAML file at path (optional, empty path skips it), overlaid by
// environment variables. The result is validated.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		fileCfg, err := loadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	cfg = applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}
