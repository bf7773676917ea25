package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beeper/chatgate/pkg/config"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCheckValidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", config.ExampleConfig)

	stdout, _, err := executeCLI(t, "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "platform: chatgate")
	assert.Contains(t, stdout, "connection 0: ws-reverse listen=127.0.0.1:8080/onebot/v11/ws (no token)")
	assert.Contains(t, stdout, "config OK")
}

func TestCheckJSON5Config(t *testing.T) {
	path := writeConfig(t, "config.json5", `{connections: [{type: "http", target: "http://gw:5700", token: "t", push_disabled: true}]}`)

	stdout, _, err := executeCLI(t, "check", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "connection 0: http target=http://gw:5700")
	assert.Contains(t, stdout, "(token set)")
}

func TestCheckRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", "connections:\n  - type: ws-reverse\n")

	_, _, err := executeCLI(t, "check", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a port")
}

func TestExampleConfigAndVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "example-config")
	require.NoError(t, err)
	assert.Equal(t, config.ExampleConfig, stdout)

	stdout, _, err = executeCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "chatgate unknown")
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	var buf bytes.Buffer
	log := newLogger(cfg, &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
