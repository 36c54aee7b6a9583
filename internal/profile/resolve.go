package profile

import (
	"fmt"
	"regexp"

	"github.com/civicgrid/complaintd/internal/config"
)

// DefaultName is the profile used when neither flag nor config picks one.
const DefaultName = "main"

// Resolve determines the active profile name using precedence: the
// --profile flag, then config.toml default_profile, then DefaultName.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name is safe to use as a directory component.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}
