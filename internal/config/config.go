package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
// A double underscore descends into a section: CATECHISEME_CACHE__VERSION -> cache.version.
const EnvPrefix = "CATECHISEME_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (CATECHISEME_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// The manifest is filled in after unmarshalling so that a configured list
	// replaces the default one instead of being merged into it.
	cfg := DefaultConfig()
	cfg.Cache.Manifest = nil

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if len(cfg.Cache.Manifest) == 0 {
		cfg.Cache.Manifest = append([]string(nil), DefaultManifest...)
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogLevels = map[LogLevel]bool{
	LogDebug: true,
	LogInfo:  true,
	LogWarn:  true,
	LogError: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	if c.DonationURL != "" {
		u, err := url.Parse(c.DonationURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid donation_url %q", c.DonationURL)
		}
	}

	if c.Cache.Prefix == "" {
		return fmt.Errorf("cache.prefix is required")
	}
	if c.Cache.Version == "" {
		return fmt.Errorf("cache.version is required")
	}
	if len(c.Cache.Manifest) == 0 {
		return fmt.Errorf("cache.manifest must list at least one asset")
	}
	for _, p := range c.Cache.Manifest {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("cache.manifest entry %q must start with /", p)
		}
	}
	if c.Cache.OriginURL != "" {
		if _, err := url.ParseRequestURI(c.Cache.OriginURL); err != nil {
			return fmt.Errorf("invalid cache.origin_url %q: %w", c.Cache.OriginURL, err)
		}
	}

	return nil
}
