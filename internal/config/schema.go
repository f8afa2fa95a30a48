package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Cache     CacheConfig     `yaml:"cache"`
	BundleDir string          `yaml:"bundle_dir,omitempty"` // watched for local bundles
	Versions  []VersionConfig `yaml:"versions"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// FetchConfig tunes bundle retrieval
type FetchConfig struct {
	Timeout Duration `yaml:"timeout"`
	Rate    float64  `yaml:"rate"` // requests per second, 0 = unlimited
	Burst   int      `yaml:"burst"`
}

// CacheConfig configures the shared bundle cache. An empty URL disables it.
type CacheConfig struct {
	RedisURL string   `yaml:"redis_url,omitempty"`
	TTL      Duration `yaml:"ttl"`
}

// VersionConfig is one ATT&CK dataset release
type VersionConfig struct {
	Name           string         `yaml:"name"`
	Version        string         `yaml:"version"`
	Authentication AuthConfig     `yaml:"authentication,omitempty"`
	Domains        []DomainConfig `yaml:"domains"`
}

// AuthConfig holds Basic credentials for a protected data service
type AuthConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
}

// DomainConfig is one domain of a release and the bundle URLs it is built from
type DomainConfig struct {
	Name       string   `yaml:"name"`
	Identifier string   `yaml:"identifier"`
	Data       []string `yaml:"data"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
