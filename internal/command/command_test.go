package command

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/hostbridge/internal/config"
	"github.com/joeycumines/hostbridge/internal/dispatch"
)

func newTestRegistry(cfg *config.Config, configPath string) *Registry {
	registry := NewRegistry()
	registry.Register(NewHelpCommand(registry))
	registry.Register(NewVersionCommand("1.2.3"))
	registry.Register(NewConfigCommand(cfg, configPath))
	return registry
}

func TestRegistry_Run(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(config.NewConfig(), "")

	var stdout, stderr bytes.Buffer
	require.NoError(t, registry.Run(context.Background(), []string{"version"}, &stdout, &stderr))
	assert.Equal(t, "hostbridge version 1.2.3\n", stdout.String())

	stdout.Reset()
	err := registry.Run(context.Background(), []string{"missing"}, &stdout, &stderr)
	assert.EqualError(t, err, "command not found: missing")
	assert.Contains(t, stderr.String(), "Unknown command: missing")

	stderr.Reset()
	err = registry.Run(context.Background(), []string{"config", "-nope"}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage: hostbridge config")

	stderr.Reset()
	assert.NoError(t, registry.Run(context.Background(), []string{"config", "-h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-section")

	assert.Equal(t, []string{"config", "help", "version"}, registry.List())
}

func TestHelpCommand(t *testing.T) {
	t.Parallel()
	registry := newTestRegistry(config.NewConfig(), "")
	help, err := registry.Get("help")
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	require.NoError(t, help.Execute(context.Background(), nil, &stdout, &stderr))
	out := stdout.String()
	assert.Contains(t, out, "Available commands")
	assert.Contains(t, out, "version")
	assert.Contains(t, out, "Manage configuration settings")
	assert.Empty(t, stderr.String())

	stdout.Reset()
	require.NoError(t, help.Execute(context.Background(), []string{"config"}, &stdout, &stderr))
	out = stdout.String()
	assert.Contains(t, out, "Command: config")
	assert.Contains(t, out, "Flags:")
	assert.Contains(t, out, "-section")

	assert.Error(t, help.Execute(context.Background(), []string{"nope"}, &stdout, &stderr))
}

func TestVersionCommand_RejectsArgs(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	err := NewVersionCommand("1").Execute(context.Background(), []string{"x"}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "unexpected arguments")
}

func runConfig(t *testing.T, cmd *ConfigCommand, argv ...string) (string, string, error) {
	t.Helper()
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.SetupFlags(fs)
	require.NoError(t, fs.Parse(argv))
	var stdout, stderr bytes.Buffer
	err := cmd.Execute(context.Background(), fs.Args(), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	cfg, err := config.LoadFromReader(strings.NewReader("log.level debug\nbogus 1\n[remote]\nStorage 127.0.0.1:1\n[views]\nv1 v2\n"))
	require.NoError(t, err)
	cmd := NewConfigCommand(cfg, path)

	out, _, err := runConfig(t, cmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration management:")

	out, _, err = runConfig(t, cmd, "log.level")
	require.NoError(t, err)
	assert.Equal(t, "log.level: debug\n", out)

	out, _, err = runConfig(t, cmd, "-section", "serve", "listen")
	require.NoError(t, err)
	assert.Equal(t, "[serve] listen: 127.0.0.1:7443\n", out)

	out, _, err = runConfig(t, cmd, "-section", "", "missing")
	require.NoError(t, err)
	assert.Equal(t, "Configuration key 'missing' not found\n", out)

	out, _, err = runConfig(t, cmd, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "1 issue(s)")
	assert.Contains(t, out, `unknown global option: "bogus"`)

	out, _, err = runConfig(t, cmd, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "[bridge] Options:")

	out, _, err = runConfig(t, cmd, "-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Global configuration:\n  bogus: 1\n  log.level: debug\n")
	assert.Contains(t, out, "[remote]\n  Storage: 127.0.0.1:1\n")
	assert.Contains(t, out, "[views]\n  v1: v2\n")

	out, errOut, err := runConfig(t, cmd, "-section", "bridge", "global-name", "Bridge")
	require.NoError(t, err)
	assert.Equal(t, "Set configuration: [bridge] global-name = Bridge\n", out)
	assert.Empty(t, errOut)
	got, _ := cfg.GetSectionOption("bridge", "global-name")
	assert.Equal(t, "Bridge", got)

	_, errOut, err = runConfig(t, cmd, "-section", "", "colour", "auto")
	require.NoError(t, err)
	assert.Contains(t, errOut, "colour is not a known option")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "colour auto\n[bridge]\nglobal-name Bridge\n", string(data))

	_, _, err = runConfig(t, cmd, "a", "b", "c")
	assert.Error(t, err)
}

func TestCommonFlags_Settings(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("log.level warn\nlog.file /from/file\n"), 0o600))

	f := commonFlags{configPath: path, logLevel: "debug", metricsListen: ":1"}
	cfg, s, err := f.settings(config.NewConfig(), map[string]string{"HOSTBRIDGE_LOG_FILE": "/from/env"})
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "/from/env", s.LogFile)
	assert.Equal(t, ":1", s.MetricsListen)
	got, _ := cfg.GetGlobalOption("log.level")
	assert.Equal(t, "warn", got)
}

func TestStack_Metrics(t *testing.T) {
	t.Parallel()
	var stderr bytes.Buffer
	st, err := newStack(context.Background(), config.Settings{LogLevel: "error", MetricsListen: "127.0.0.1:0"}, &stderr, "test")
	require.NoError(t, err)
	defer func() { assert.NoError(t, st.close(context.Background())) }()
	require.NotEmpty(t, st.metricsAddr)

	st.metrics.DispatchStarted(dispatch.KindView, "setColor")
	st.metrics.DispatchSettled(dispatch.KindView, "setColor", nil, time.Millisecond)

	resp, err := http.Get("http://" + st.metricsAddr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hostbridge_dispatches_started_total{kind="view"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStack_InvalidLevel(t *testing.T) {
	t.Parallel()
	_, err := newStack(context.Background(), config.Settings{LogLevel: "loud"}, io.Discard, "test")
	assert.EqualError(t, err, "invalid log level: loud")
}

func TestStack_InvalidTelemetryEndpoint(t *testing.T) {
	t.Parallel()
	_, err := newStack(context.Background(), config.Settings{LogLevel: "error", TelemetryEndpoint: "://bad"}, io.Discard, "test")
	assert.ErrorContains(t, err, "telemetry: invalid telemetry endpoint")
}
