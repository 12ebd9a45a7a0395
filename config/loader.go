package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "ARENA_"

// configPathVar names the optional YAML file to layer over the defaults.
const configPathVar = "ARENA_CONFIG"

// Load builds the configuration by layering, lowest precedence first:
//  1. Default()
//  2. the YAML file named by ARENA_CONFIG, when set
//  3. ARENA_-prefixed environment variables
//
// Environment keys map section by section with a double underscore between
// levels, single underscores staying inside a key:
// ARENA_POSTGRES__MAX_CONNS -> postgres.max_conns.
func Load() (*Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path := os.Getenv(configPathVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %q: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
