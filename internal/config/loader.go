package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "DIGIT_"

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. YAML file named by DIGIT_CONFIG, if set
//  3. environment variables prefixed DIGIT_ (DIGIT_MODEL_PATH -> model_path)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Temperature <= 0 || math.IsNaN(c.Temperature) || math.IsInf(c.Temperature, 0):
		return fmt.Errorf("%w: temperature must be a positive number", ErrInvalidConfig)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	case c.MaxCanvasPixels <= 0:
		return fmt.Errorf("%w: max_canvas_pixels must be positive", ErrInvalidConfig)
	}

	if _, err := preprocess.ParseMethod(c.Resample); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Backend {
	case BackendONNX:
		if c.ModelPath == "" {
			return fmt.Errorf("%w: model_path is required for the onnx backend", ErrInvalidConfig)
		}
	case BackendRemote:
		if c.RemoteURL == "" {
			return fmt.Errorf("%w: remote_url is required for the remote backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}
