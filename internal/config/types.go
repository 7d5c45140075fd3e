package config

import "github.com/ziadkadry99/catechiseme/internal/assetcache"

// LogLevel selects the minimum severity written by the logger.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Config is the top-level catechiseme configuration, corresponding to catechiseme.yml.
type Config struct {
	Port            int         `yaml:"port" koanf:"port"`
	CatalogFile     string      `yaml:"catalog_file" koanf:"catalog_file"`
	AssetsDir       string      `yaml:"assets_dir" koanf:"assets_dir"`
	DataDir         string      `yaml:"data_dir" koanf:"data_dir"`
	DonationURL     string      `yaml:"donation_url" koanf:"donation_url"`
	AllowAllOrigins bool        `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	LogLevel        LogLevel    `yaml:"log_level" koanf:"log_level"`
	Cache           CacheConfig `yaml:"cache" koanf:"cache"`
}

// CacheConfig holds offline asset cache settings.
type CacheConfig struct {
	Prefix    string   `yaml:"prefix" koanf:"prefix"`
	Version   string   `yaml:"version" koanf:"version"`
	Manifest  []string `yaml:"manifest" koanf:"manifest"`
	OriginURL string   `yaml:"origin_url" koanf:"origin_url"`
	Watch     bool     `yaml:"watch" koanf:"watch"`
}

// BucketName returns the version-tagged bucket name for the configured version.
func (c CacheConfig) BucketName() string {
	return assetcache.BucketName(c.Prefix, c.Version)
}
