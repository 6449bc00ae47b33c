package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/antcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/antcore/internal/server"
)

func executeCommand(root *cobra.Command, stdin string, args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func startServer(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.Runtime.AppDir = t.TempDir()
	cfg.Metrics.Enabled = false

	srv, err := server.New(cfg, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Manager().Close()
	})
	return ts.URL
}

func TestVersionFlag(t *testing.T) {
	out, _, err := executeCommand(newRootCommand(), "", "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "antcore version dev")
}

func TestHelpListsCommands(t *testing.T) {
	out, _, err := executeCommand(newRootCommand(), "", "--help")
	require.NoError(t, err)

	for _, name := range []string{"serve", "ping", "install", "status", "start", "stop", "remove", "code", "command"} {
		assert.Contains(t, out, name)
	}
}

func TestClientCommands(t *testing.T) {
	addr := startServer(t)
	code := "function start(){ return 'Success'; }"

	out, stderr, err := executeCommand(newRootCommand(), "", "ping", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "Alive\n", out)
	assert.Contains(t, stderr, "200 OK")

	_, _, err = executeCommand(newRootCommand(), "", "status", "--addr", addr)
	assert.EqualError(t, err, "server answered 500")

	out, _, err = executeCommand(newRootCommand(), code, "install", "-", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "Success\n", out)

	out, _, err = executeCommand(newRootCommand(), "", "code", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, code, out)

	out, _, err = executeCommand(newRootCommand(), "", "command", "start", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "Success\n", out)

	out, _, err = executeCommand(newRootCommand(), "", "status", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, `"state":"running"`)

	out, _, err = executeCommand(newRootCommand(), "", "stop", "--addr", addr)
	assert.EqualError(t, err, "server answered 500")
	assert.Equal(t, "Not yet implemented\n", out)
}

func TestInstallFromFile(t *testing.T) {
	addr := startServer(t)
	path := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(path, []byte("function start(){}"), 0o644))

	out, _, err := executeCommand(newRootCommand(), "", "install", path, "--gzip", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "Success\n", out)

	_, _, err = executeCommand(newRootCommand(), "", "install", filepath.Join(t.TempDir(), "missing.js"), "--addr", addr)
	assert.Error(t, err)
}

func TestAddrFromEnvironment(t *testing.T) {
	addr := startServer(t)
	t.Setenv("ANTCORE_URL", addr)

	out, _, err := executeCommand(newRootCommand(), "", "ping")
	require.NoError(t, err)
	assert.Equal(t, "Alive\n", out)
}
