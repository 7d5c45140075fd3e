package config

import "path/filepath"

// DefaultManifest is the enumerated list of shell assets made available offline.
// It must match what the server actually serves.
var DefaultManifest = []string{
	"/",
	"/index.html",
	"/css/style.css",
	"/js/app.js",
	"/catalog.json",
	"/printable.html",
	"/manifest.json",
}

// DefaultDonationURL is the fixed payment link behind the welcome page button.
const DefaultDonationURL = "https://www.paypal.com/ncp/payment/6P4SJKMEHNWBS"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		DataDir:     ".catechiseme",
		DonationURL: DefaultDonationURL,
		LogLevel:    LogInfo,
		Cache: CacheConfig{
			Prefix:   "catechisem-cache",
			Version:  "v1",
			Manifest: append([]string(nil), DefaultManifest...),
		},
	}
}

// DBPath returns the location of the SQLite database holding asset buckets.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "catechiseme.db")
}
