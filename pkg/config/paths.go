// Package config loads accounts, conversation profiles, and engine
// defaults from a per-user config directory (spec §6), the same
// env-var-plus-YAML-file split as original_source's
// basilisk/config/config_helper.py, with os.UserConfigDir() standing in
// for platformdirs.
package config

import (
	"os"
	"path/filepath"
)

const (
	appDirName       = "basilisk_llm"
	accountsFileName = "accounts.yml"
	profilesFileName = "profiles.yml"
)

// Dir returns the per-user config directory, creating it if missing.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func accountsPath(dir string) string { return filepath.Join(dir, accountsFileName) }
func profilesPath(dir string) string { return filepath.Join(dir, profilesFileName) }
