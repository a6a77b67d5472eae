package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/linkbridge/internal/config"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func tempCLIConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("LINKBRIDGE_DATA_DIR", t.TempDir())
	return filepath.Join(t.TempDir(), "config.json")
}

func TestConfigSetWritesValidatedValue(t *testing.T) {
	path := tempCLIConfig(t)

	out, err := runCLI(t, "--config", path, "config", "set", "timing.poll_ms", "500")
	require.NoError(t, err)
	assert.Equal(t, "Set timing.poll_ms = 500\n", out)

	v, err := config.GetValue(path, "timing.poll_ms")
	require.NoError(t, err)
	assert.Equal(t, 500.0, v)
}

func TestConfigSetRejectsBadValues(t *testing.T) {
	path := tempCLIConfig(t)

	_, err := runCLI(t, "--config", path, "config", "set", "links.trap_link", "sometimes")
	assert.ErrorContains(t, err, "expected true or false")

	_, err = runCLI(t, "--config", path, "config", "set", "housekeeping.schedule", "every tuesday")
	assert.Error(t, err)

	v, err := config.GetValue(path, "housekeeping.schedule")
	require.NoError(t, err)
	assert.Equal(t, "@every 30s", v)
}

func TestConfigSetMasksSecretEcho(t *testing.T) {
	path := tempCLIConfig(t)
	out, err := runCLI(t, "--config", path, "config", "set", "server.password", "hunter2-secret")
	require.NoError(t, err)
	assert.Equal(t, "Set server.password = ***\n", out)
}

func TestStatusWithoutDaemon(t *testing.T) {
	path := tempCLIConfig(t)
	out, err := runCLI(t, "--config", path, "status")
	require.NoError(t, err)
	assert.Equal(t, "not running\n", out)
}

func TestFindDaemon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, pidFileName)

	_, err := findDaemon(path)
	assert.ErrorIs(t, err, errNoDaemon)

	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0644))
	_, err = findDaemon(path)
	assert.ErrorContains(t, err, "corrupt PID file")

	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644))
	d, err := findDaemon(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), d.pid)
	assert.True(t, d.alive())
}

func TestWaitExitGivesUpOnLiveProcess(t *testing.T) {
	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	d := &daemon{pid: os.Getpid(), proc: proc}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.Error(t, d.waitExit(ctx))
}
