// Package config loads the engine and server configuration: defaults,
// overridden by a YAML file, overridden by VERSED_* environment variables,
// overridden by command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config is the full configuration tree.
type Config struct {
	Listen  string        `koanf:"listen"`
	DB      string        `koanf:"db"` // sqlite path; empty selects the in-memory store
	Catalog CatalogConfig `koanf:"catalog"`
	Engine  EngineConfig  `koanf:"engine" validate:"required"`
}

// CatalogConfig locates the lyric catalog.
type CatalogConfig struct {
	Dir string `koanf:"dir"`
	Git string `koanf:"git"` // optional remote; synced into Dir before loading
}

// EngineConfig carries the scheduling engine's tunables. Factor, Decay and
// Retention shape the retrievability curve and with it the review cadence of
// the whole system.
type EngineConfig struct {
	LineCeiling uint16 `koanf:"line_ceiling" validate:"min=1"`
	MaxBatch    int    `koanf:"max_batch" validate:"min=1"`
	ScoreMin    int    `koanf:"score_min" validate:"min=0"`
	ScoreMax    int    `koanf:"score_max" validate:"gtfield=ScoreMin"`

	Retention       float64 `koanf:"retention" validate:"gt=0,lt=1"`
	Factor          float64 `koanf:"factor" validate:"gt=0"`
	Decay           float64 `koanf:"decay" validate:"gt=0"`
	MaxIntervalDays uint32  `koanf:"max_interval_days" validate:"min=1"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Listen: ":8489",
		Catalog: CatalogConfig{
			Dir: "catalog",
		},
		Engine: EngineConfig{
			LineCeiling:     255,
			MaxBatch:        50,
			ScoreMin:        0,
			ScoreMax:        100,
			Retention:       0.9,
			Factor:          81.0 / 19.0,
			Decay:           0.5,
			MaxIntervalDays: 36500,
		},
	}
}

// Load merges defaults, the YAML file at path (if it exists), VERSED_*
// environment variables, and the given flag set, then validates the result.
// Flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	// VERSED_ENGINE_MAX_BATCH=100 → engine.max_batch. The section prefix
	// becomes the nesting dot; the rest of the name keeps its underscores.
	err := k.Load(env.Provider("VERSED_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "VERSED_"))
		for _, prefix := range []string{"catalog_", "engine_"} {
			if strings.HasPrefix(s, prefix) {
				return strings.TrimSuffix(prefix, "_") + "." + strings.TrimPrefix(s, prefix)
			}
		}
		return s
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("loading flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
