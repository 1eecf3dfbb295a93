package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - PINARCH_CONFIG_PATH: config file location (default: ~/.config/pinarch.toml)
//   - PINARCH_HOME: base directory for the archive (default: ~/.local/share/pinarch)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking PINARCH_CONFIG_PATH
// first, then falling back to the default ~/.config/pinarch.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("PINARCH_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "pinarch.toml"), nil
}

// getBaseDir returns the archive base directory, checking PINARCH_HOME
// first, then falling back to the XDG default ~/.local/share/pinarch.
func getBaseDir() (string, error) {
	if path := os.Getenv("PINARCH_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "pinarch"), nil
}
