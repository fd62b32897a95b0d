// Package config loads runtime configuration from defaults, an
// optional YAML file and NJT_-prefixed environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
)

const envPrefix = "NJT_"

// Config is the full runtime configuration shared by the CLI and the
// server. Every field can be set from config.yaml or from environment,
// NJT_SERVER_ADDR maps to server.addr and so on.
type Config struct {
	Server struct {
		// Addr is the listen address of the HTTP service.
		Addr string `koanf:"addr" validate:"required"`
	} `koanf:"server"`

	Federation struct {
		// Host is the only upstream the scrape proxy will talk to.
		Host      string `koanf:"host" validate:"required,hostname"`
		UserAgent string `koanf:"useragent" validate:"required"`
		// RPS caps outbound requests to the federation site.
		RPS float64 `koanf:"rps" validate:"gt=0"`
	} `koanf:"federation"`

	Data struct {
		// Dir holds the CLI's per-club JSON files.
		Dir string `koanf:"dir" validate:"required"`
	} `koanf:"data"`

	Sync struct {
		// Secret signs and verifies sync tokens. Empty disables the
		// sync endpoints.
		Secret string `koanf:"secret"`
		// Server is the base URL the CLI pushes to and pulls from.
		Server string `koanf:"server" validate:"omitempty,url"`
	} `koanf:"sync"`

	RateLimit struct {
		// Scrape is the per-client budget of the scrape endpoint,
		// requests per minute.
		Scrape int `koanf:"scrape" validate:"gt=0"`
		// Events is the per-client budget of the sync endpoints,
		// requests per minute.
		Events int `koanf:"events" validate:"gt=0"`
	} `koanf:"ratelimit"`

	Badger struct {
		// Dir is the server-side sync store location.
		Dir string `koanf:"dir" validate:"required"`
	} `koanf:"badger"`

	Log struct {
		Level  string `koanf:"level" validate:"oneof=debug info warn error"`
		Format string `koanf:"format" validate:"oneof=json console"`
	} `koanf:"log"`
}

func defaults() Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Federation.Host = fetch.DefaultHost
	c.Federation.UserAgent = fetch.UserAgent
	c.Federation.RPS = 1
	c.Data.Dir = "~/.njt"
	c.RateLimit.Scrape = 30
	c.RateLimit.Events = 60
	c.Badger.Dir = "~/.njt/sync-db"
	c.Log.Level = "info"
	c.Log.Format = "json"
	return c
}

// Load builds the configuration. The YAML file is read from
// CONFIG_PATH when set, otherwise from ./config.yaml when present; a
// missing file is not an error, a malformed one is.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envToKey maps NJT_FEDERATION_HOST to federation.host. Key segments
// never contain underscores, so the blanket replacement is safe.
func envToKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}
