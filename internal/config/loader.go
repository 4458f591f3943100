package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/stagectl"
	projectConfigDir = ".stagectl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the stagectl configuration by layering default, user, and project settings.
func LoadConfig() (HarnessConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
		userConfig, err := loadConfigFromFile(userConfigPath)
		if err != nil {
			return HarnessConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
		config = mergeConfigs(config, userConfig)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
		projectConfig, err := loadConfigFromFile(projectConfigPath)
		if err != nil {
			return HarnessConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
		config = mergeConfigs(config, projectConfig)
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a HarnessConfig from a YAML file.
func loadConfigFromFile(filePath string) (HarnessConfig, error) {
	var config HarnessConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return HarnessConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return HarnessConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Zero values in the
// overlay leave the base untouched.
func mergeConfigs(base, overlay HarnessConfig) HarnessConfig {
	merged := base

	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}
	if overlay.Logging.Format != "" {
		merged.Logging.Format = overlay.Logging.Format
	}

	if overlay.Launcher.PollInterval > 0 {
		merged.Launcher.PollInterval = overlay.Launcher.PollInterval
	}
	if overlay.Launcher.Runtime != "" {
		merged.Launcher.Runtime = overlay.Launcher.Runtime
	}
	if overlay.Launcher.ModulePath != "" {
		merged.Launcher.ModulePath = overlay.Launcher.ModulePath
	}

	if overlay.Orchestrator.DefaultReadinessTimeout > 0 {
		merged.Orchestrator.DefaultReadinessTimeout = overlay.Orchestrator.DefaultReadinessTimeout
	}
	if overlay.Orchestrator.VerifySlots > 0 {
		merged.Orchestrator.VerifySlots = overlay.Orchestrator.VerifySlots
	}

	if overlay.Executor.DefaultEnv != nil {
		env := make(map[string]string, len(overlay.Executor.DefaultEnv))
		for k, v := range overlay.Executor.DefaultEnv {
			env[k] = v
		}
		merged.Executor.DefaultEnv = env
	}

	if overlay.Metrics.Address != "" {
		merged.Metrics.Address = overlay.Metrics.Address
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
