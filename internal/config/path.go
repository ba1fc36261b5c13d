package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "viva", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "viva", "config.jsonc"), nil
}

// ResolveSpoolDir returns the configured spool directory or the XDG state default.
func ResolveSpoolDir(cfg Config) (string, error) {
	if dir := strings.TrimSpace(cfg.Spool.Dir); dir != "" {
		return expandUserPath(dir), nil
	}

	if state := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); state != "" {
		return filepath.Join(state, "viva", "spool"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for spool fallback")
	}
	return filepath.Join(home, ".local", "state", "viva", "spool"), nil
}
