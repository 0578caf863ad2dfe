// Package config provides XDG-style path helpers for the imagecached CLI.
package config

import (
	"os"
	"path/filepath"
)

// CacheDir returns the default imagecached cache directory: XDG_CACHE_HOME/
// imagecached, defaulting to ~/.cache/imagecached.
func CacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "imagecached"), nil
}

// Dir returns the default imagecached config directory: XDG_CONFIG_HOME/
// imagecached, defaulting to ~/.config/imagecached.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "imagecached"), nil
}
