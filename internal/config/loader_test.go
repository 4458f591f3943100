package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Helper function to create a temporary config file
func createTempConfigFile(t *testing.T, dir string, filename string, content HarnessConfig) string {
	t.Helper()
	tempFilePath := filepath.Join(dir, filename)
	require.NoError(t, os.MkdirAll(filepath.Dir(tempFilePath), 0755))
	data, err := yaml.Marshal(&content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tempFilePath, data, 0644))
	return tempFilePath
}

func mockConfigPaths(t *testing.T, userPath, projectPath string) {
	t.Helper()
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	t.Cleanup(func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	})

	getUserConfigPath = func() (string, error) { return userPath, nil }
	getProjectConfigPath = func() (string, error) { return projectPath, nil }
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t,
		filepath.Join(tempDir, "non-existent-user-config.yaml"),
		filepath.Join(tempDir, "non-existent-project-config.yaml"))

	loadedConfig, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loadedConfig)
}

func TestLoadConfig_UserThenProjectOverride(t *testing.T) {
	tempDir := t.TempDir()

	userPath := createTempConfigFile(t, tempDir, filepath.Join("user", configFileName), HarnessConfig{
		Logging:  LoggingConfig{Level: "debug"},
		Launcher: LauncherSettings{PollInterval: time.Second},
		Orchestrator: OrchestratorSettings{
			DefaultReadinessTimeout: 20 * time.Second,
		},
	})
	projectPath := createTempConfigFile(t, tempDir, filepath.Join("project", configFileName), HarnessConfig{
		Launcher: LauncherSettings{PollInterval: 2 * time.Second, ModulePath: "/opt/stage"},
		Executor: ExecutorSettings{DefaultEnv: map[string]string{"LANG": "C.UTF-8"}},
		Metrics:  MetricsConfig{Address: ":9091"},
	})
	mockConfigPaths(t, userPath, projectPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level, "user level should survive project layer")
	assert.Equal(t, "text", cfg.Logging.Format, "default format should survive both layers")
	assert.Equal(t, 2*time.Second, cfg.Launcher.PollInterval, "project overrides user")
	assert.Equal(t, "/opt/stage", cfg.Launcher.ModulePath)
	assert.Equal(t, 20*time.Second, cfg.Orchestrator.DefaultReadinessTimeout)
	assert.Equal(t, map[string]string{"LANG": "C.UTF-8"}, cfg.Executor.DefaultEnv)
	assert.Equal(t, ":9091", cfg.Metrics.Address)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	userPath := filepath.Join(tempDir, configFileName)
	require.NoError(t, os.WriteFile(userPath, []byte("launcher: [not, a, map"), 0644))
	mockConfigPaths(t, userPath, filepath.Join(tempDir, "missing.yaml"))

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading user config")
}

func TestGetUserConfigDir(t *testing.T) {
	originalOsUserHomeDir := osUserHomeDir
	defer func() { osUserHomeDir = originalOsUserHomeDir }()
	osUserHomeDir = func() (string, error) { return "/home/tester", nil }

	dir, err := GetUserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/tester", ".config", "stagectl"), dir)
}

func TestDefaultEnvFor(t *testing.T) {
	assert.Equal(t, map[string]string{"LC_ALL": "C"}, DefaultEnvFor("linux"))
	assert.Equal(t, map[string]string{"LC_ALL": "C"}, DefaultEnvFor("darwin"))
	assert.Equal(t, map[string]string{"LANGUAGE": "C"}, DefaultEnvFor("windows"))
}
