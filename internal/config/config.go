// Package config provides configuration management for attacknav.
//
// The config file names the ATT&CK releases the service offers and where
// their bundles live; the database holds layers and bundle snapshots and
// can be reset without losing that identity.
//
// Config file locations (priority order):
//  1. $ATTACKNAV_CONFIG
//  2. ./attacknav.yaml
//  3. $XDG_CONFIG_HOME/attacknav/config.yaml
//  4. ~/.config/attacknav/config.yaml
//  5. /etc/attacknav/config.yaml
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"attacknav/internal/domain"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddr     = ":3000"
	defaultDatabase = "./attacknav.db"
	defaultTimeout  = 60 * time.Second
	defaultCacheTTL = 24 * time.Hour

	ctiBaseURL = "https://raw.githubusercontent.com/mitre/cti/ATT%26CK-v"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.Database.Path = ResolvePath(path, cfg.Database.Path)
	cfg.BundleDir = ResolvePath(path, cfg.BundleDir)

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig serves the current Enterprise, Mobile and ICS releases from
// the public CTI repository
func DefaultConfig() *Config {
	cfg := &Config{
		Versions: []VersionConfig{{
			Name:    "ATT&CK v14",
			Version: "14.1",
			Domains: []DomainConfig{
				{Name: "Enterprise", Identifier: "enterprise-attack", Data: []string{ctiURL("14.1", "enterprise-attack")}},
				{Name: "Mobile", Identifier: "mobile-attack", Data: []string{ctiURL("14.1", "mobile-attack")}},
				{Name: "ICS", Identifier: "ics-attack", Data: []string{ctiURL("14.1", "ics-attack")}},
			},
		}},
	}
	cfg.applyDefaults()
	return cfg
}

func ctiURL(version, identifier string) string {
	return ctiBaseURL + version + "/" + identifier + "/" + identifier + ".json"
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDatabase
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(defaultTimeout)
	}
	if c.Fetch.Rate > 0 && c.Fetch.Burst == 0 {
		c.Fetch.Burst = 1
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(defaultCacheTTL)
	}
}

// Validate checks that every domain version is addressable and has data
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, v := range c.Versions {
		if v.Version == "" {
			errs = append(errs, fmt.Errorf("version %q has no version number", v.Name))
		}
		if v.Authentication.Enabled && (v.Authentication.ServiceName == "" || v.Authentication.APIKey == "") {
			errs = append(errs, fmt.Errorf("version %q enables authentication without credentials", v.Name))
		}
		for _, d := range v.Domains {
			id := domain.VersionID(d.Identifier, v.Version)
			switch {
			case d.Identifier == "":
				errs = append(errs, fmt.Errorf("version %q has a domain without identifier", v.Name))
			case len(d.Data) == 0:
				errs = append(errs, fmt.Errorf("domain %s has no data", id))
			case seen[id]:
				errs = append(errs, fmt.Errorf("domain %s configured twice", id))
			}
			seen[id] = true
		}
	}
	return errors.Join(errs...)
}

// SortedVersions returns the versions newest first. Versions that are not
// semantic versions sort after those that are, by name.
func (c *Config) SortedVersions() []VersionConfig {
	out := append([]VersionConfig{}, c.Versions...)
	sort.SliceStable(out, func(i, j int) bool {
		vi, erri := semver.NewVersion(out[i].Version)
		vj, errj := semver.NewVersion(out[j].Version)
		switch {
		case erri == nil && errj == nil:
			return vi.GreaterThan(vj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		}
		return out[i].Version > out[j].Version
	})
	return out
}

// DomainVersion is one loadable domain of one release
type DomainVersion struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Identifier  string      `json:"identifier"`
	Version     string      `json:"version"`
	VersionName string      `json:"version_name"`
	Data        []string    `json:"-"`
	Auth        *AuthConfig `json:"-"`
}

// DomainVersions flattens the releases into loadable domains, newest
// release first
func (c *Config) DomainVersions() []DomainVersion {
	var out []DomainVersion
	for _, v := range c.SortedVersions() {
		var auth *AuthConfig
		if v.Authentication.Enabled {
			a := v.Authentication
			auth = &a
		}
		for _, d := range v.Domains {
			out = append(out, DomainVersion{
				ID:          domain.VersionID(d.Identifier, v.Version),
				Name:        d.Name,
				Identifier:  d.Identifier,
				Version:     v.Version,
				VersionName: v.Name,
				Data:        append([]string{}, d.Data...),
				Auth:        auth,
			})
		}
	}
	return out
}

// LogLevel maps the configured level, defaulting to info
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	domains := c.DomainVersions()
	summary := fmt.Sprintf("Listen: %s, Database: %s\n", c.Server.Addr, c.Database.Path)
	summary += fmt.Sprintf("Fetch timeout: %s, Cache: %t\n", c.Fetch.Timeout.Duration(), c.Cache.RedisURL != "")
	summary += fmt.Sprintf("Domains (%d):", len(domains))
	for _, d := range domains {
		summary += " " + d.ID
	}
	return summary
}
