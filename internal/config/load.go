package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Loaded is the resolved config plus non-fatal warnings. Exists is false
// when the default location had no file and defaults were used.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load reads config.jsonc from explicitPath or the XDG default. A missing
// default file falls back to Default(); a missing explicit file is an error.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && strings.TrimSpace(explicitPath) == "":
		return Loaded{
			Path:   path,
			Config: Default(),
			Warnings: []Warning{{
				Message: fmt.Sprintf("config file %q not found; using defaults", path),
			}},
		}, nil
	default:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return Loaded{Path: path, Config: cfg, Warnings: warnings, Exists: true}, nil
}
