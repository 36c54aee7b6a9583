// Package profile resolves the per-profile directory layout under
// ~/.complaintd. A profile is one (service, actor) pairing with its own
// cache, config and logs.
package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.complaintd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".complaintd")
}

// Dir returns the directory for a named profile.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ProfileConfigPath returns the per-profile profile.toml path.
func ProfileConfigPath(name string) string {
	return filepath.Join(Dir(name), "profile.toml")
}

// CachePath returns the profile's snapshot cache database path.
func CachePath(name string) string {
	return filepath.Join(Dir(name), "cache.db")
}

// LockPath returns the profile's lock file path.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// LogDir returns the profile's log directory.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "complaintd.log")
}

// EnsureDir creates the profile directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
