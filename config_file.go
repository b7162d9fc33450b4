package goMagicLink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile describes the loadconfigfile operation and its observable behavior.
//
// LoadConfigFile reads a YAML document from path, overlays it on [DefaultConfig] and validates the result.
// LoadConfigFile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig describes the parseconfig operation and its observable behavior.
//
// ParseConfig decodes YAML over the defaults. Unknown keys are rejected and durations use Go syntax ("15m", "24h").
// ParseConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func ParseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
