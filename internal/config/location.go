package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath returns the configuration file path: $HOSTBRIDGE_CONFIG if
// set, otherwise ~/.hostbridge/config.
func GetConfigPath() (string, error) {
	if configPath := os.Getenv("HOSTBRIDGE_CONFIG"); configPath != "" {
		return configPath, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".hostbridge", "config"), nil
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}
