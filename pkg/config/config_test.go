package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-sentinel/sentinel/pkg/types"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FAST_CLASSIFIER_URL", "http://classifier:8080/v1/chat/completions")
	t.Setenv("DEEP_ANALYZER_URL", "http://analyzer:8080/v1/chat/completions")
	t.Setenv("TOOL_GATEWAY_URL", "http://gateway:9000/mcp")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.APIPort)
	assert.True(t, cfg.AutoHealEnabled)
	assert.Equal(t, 20, cfg.LogLinesPerCheck)
	assert.Equal(t, 5*time.Second, cfg.LogCheckInterval)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("FAST_CLASSIFIER_URL", "")
	os.Unsetenv("FAST_CLASSIFIER_URL")
	os.Unsetenv("DEEP_ANALYZER_URL")
	os.Unsetenv("TOOL_GATEWAY_URL")

	_, err := Load("")
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.KindOf(err))
	assert.Contains(t, err.Error(), "FAST_CLASSIFIER_URL")
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9001")
	t.Setenv("AUTO_HEAL_ENABLED", "false")
	t.Setenv("LOG_LINES_PER_CHECK", "50")
	t.Setenv("LOG_CHECK_INTERVAL", "10s")
	t.Setenv("EVENT_BUS_TOPICS", "incident, incident_update")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.APIPort)
	assert.False(t, cfg.AutoHealEnabled)
	assert.Equal(t, 50, cfg.LogLinesPerCheck)
	assert.Equal(t, 10*time.Second, cfg.LogCheckInterval)
	assert.Equal(t, []string{"incident", "incident_update"}, cfg.EventBusTopics)
}

func TestLoad_BareSecondsInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_CHECK_INTERVAL", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.LogCheckInterval)
}

func TestLoad_YAMLFileWithEnvPrecedence(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9100")

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_port: 8500
log_lines_per_check: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.APIPort, "environment beats the file")
	assert.Equal(t, 30, cfg.LogLinesPerCheck, "file beats defaults")
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "70000")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("API_PORT", "8000")
	t.Setenv("LOG_LINES_PER_CHECK", "0")
	_, err = Load("")
	require.Error(t, err)
}
