// Package config reads the global ~/.complaintd/config.toml and the
// per-profile profile.toml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the global config file. It only picks the default profile.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Load reads the global config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Profile is a per-profile profile.toml: where the complaint service
// lives, who the actor is, and how the sync layer should behave.
type Profile struct {
	// APIURL is the complaint service base URL (http or https). The live
	// feed endpoint is derived from it. Required.
	APIURL string `toml:"api_url"`
	// Token is the bearer token for both REST and feed. Issued elsewhere.
	Token string `toml:"token"`
	// FeedPath overrides the feed path appended to the derived ws URL.
	FeedPath string `toml:"feed_path"`
	// Role scopes the status workflow: admin, staff or reporter.
	Role string `toml:"role"`
	// Listen is the local address for the read-only projection API.
	// Empty disables it.
	Listen string `toml:"listen"`

	// RetentionCap bounds the snapshot window. Zero selects the default.
	RetentionCap int `toml:"retention_cap"`

	// Reconnect backoff shape, in milliseconds.
	BackoffBaseMs      int `toml:"backoff_base_ms"`
	BackoffCapMs       int `toml:"backoff_cap_ms"`
	JitterMaxMs        int `toml:"jitter_max_ms"`
	HandshakeTimeoutMs int `toml:"handshake_timeout_ms"`
}

// LoadProfile reads a profile.toml and applies environment overrides:
// COMPLAINTD_API_URL, COMPLAINTD_TOKEN, COMPLAINTD_ROLE and
// COMPLAINTD_LISTEN. A missing file is fine when the environment provides
// the essentials.
func LoadProfile(path string) (*Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read profile config: %w", err)
	}

	if v := os.Getenv("COMPLAINTD_API_URL"); v != "" {
		p.APIURL = v
	}
	if v := os.Getenv("COMPLAINTD_TOKEN"); v != "" {
		p.Token = v
	}
	if v := os.Getenv("COMPLAINTD_ROLE"); v != "" {
		p.Role = v
	}
	if v := os.Getenv("COMPLAINTD_LISTEN"); v != "" {
		p.Listen = v
	}

	if p.Role == "" {
		p.Role = "reporter"
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if p.APIURL == "" {
		return fmt.Errorf("api_url is required (profile config or COMPLAINTD_API_URL)")
	}
	u, err := url.Parse(p.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_url %q must be an http(s) URL", p.APIURL)
	}
	return nil
}

// BackoffBase returns the configured backoff base, or zero for defaults.
func (p *Profile) BackoffBase() time.Duration {
	return time.Duration(p.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the configured backoff cap, or zero for defaults.
func (p *Profile) BackoffCap() time.Duration {
	return time.Duration(p.BackoffCapMs) * time.Millisecond
}

// JitterMax returns the configured jitter bound, or zero for defaults.
func (p *Profile) JitterMax() time.Duration {
	return time.Duration(p.JitterMaxMs) * time.Millisecond
}

// HandshakeTimeout returns the configured dial timeout, or zero for
// defaults.
func (p *Profile) HandshakeTimeout() time.Duration {
	return time.Duration(p.HandshakeTimeoutMs) * time.Millisecond
}

// Save writes the global config, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// SaveProfile writes a profile.toml, creating parent dirs as needed.
func SaveProfile(path string, p *Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(p)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
