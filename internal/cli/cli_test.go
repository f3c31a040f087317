package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ganot/promptsync/internal/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "promptsync", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"balance"}, {"spend"}, {"earn"}, {"daily"}, {"history"}, {"watch"},
		{"draft", "save"}, {"draft", "show"}, {"session", "set"}, {"session", "show"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	userFlag := cmd.PersistentFlags().Lookup("user")
	require.NotNil(t, userFlag)
	assert.Equal(t, "u", userFlag.Shorthand)
}

// setupServer points the CLI at a fresh server through the environment.
func setupServer(t *testing.T) *testserver.TestServer {
	t.Helper()
	ts := testserver.New(t, "cli-token", "alice")
	t.Setenv("PROMPTSYNC_CONFIG_PATH", "")
	t.Setenv("PROMPTSYNC_REMOTE_URL", ts.Server.URL)
	t.Setenv("PROMPTSYNC_TOKEN", ts.Token)
	t.Setenv("PROMPTSYNC_USER_ID", ts.TenantID)
	t.Setenv("PROMPTSYNC_CACHE_PATH", filepath.Join(t.TempDir(), "cache.db"))
	return ts
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "balance")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingUser(t *testing.T) {
	setupServer(t)
	t.Setenv("PROMPTSYNC_USER_ID", "")

	_, err := run(t, "balance")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCredits_EarnSpendReject(t *testing.T) {
	setupServer(t)

	out, err := run(t, "earn", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "balance 5")

	out, err = run(t, "spend")
	require.NoError(t, err)
	assert.Contains(t, out, "spend 1: balance 4")

	out, err = run(t, "--format", "json", "spend", "10")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out)
	assert.Equal(t, "rejected", resp.Status)
	assert.Equal(t, float64(4), resp.Data.(map[string]any)["balance"])

	out, err = run(t, "--format", "json", "balance")
	require.NoError(t, err)
	resp = decode(t, out)
	assert.Equal(t, float64(4), resp.Data.(map[string]any)["balance"])

	out, err = run(t, "history", "-n", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "SPEND")
	assert.Contains(t, out, "EARN")
}

func TestCredits_InvalidAmount(t *testing.T) {
	setupServer(t)

	_, err := run(t, "earn", "-3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCredits_DailyOncePerWindow(t *testing.T) {
	setupServer(t)

	out, err := run(t, "daily")
	require.NoError(t, err)
	assert.Contains(t, out, "granted: 0 -> 10")

	out, err = run(t, "daily")
	require.NoError(t, err)
	assert.Contains(t, out, "already claimed")
}

func TestCredits_ForeignUserRejected(t *testing.T) {
	setupServer(t)

	_, err := run(t, "--user", "mallory", "balance")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDraft_SaveThenShowOnAnotherDevice(t *testing.T) {
	setupServer(t)

	out, err := run(t, "draft", "save", "write a haiku", "--mode", "expand")
	require.NoError(t, err)
	assert.Contains(t, out, "write a haiku")

	// Second device: empty cache.
	t.Setenv("PROMPTSYNC_CACHE_PATH", filepath.Join(t.TempDir(), "other.db"))
	out, err = run(t, "--format", "json", "draft", "show")
	require.NoError(t, err)
	resp := decode(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "write a haiku", data["content"])
	assert.Equal(t, "expand", data["mode"])
}

func TestSession_SetKeepsUnchangedFields(t *testing.T) {
	setupServer(t)

	_, err := run(t, "session", "set", "--mode", "expand", "--sidebar-collapsed")
	require.NoError(t, err)

	out, err := run(t, "--format", "json", "session", "set", "--mode", "enhance")
	require.NoError(t, err)
	data := decode(t, out).Data.(map[string]any)
	assert.Equal(t, "enhance", data["last_mode"])
	assert.Equal(t, true, data["sidebar_collapsed"])

	out, err = run(t, "session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "mode enhance")
}

func TestDraft_ShowEmpty(t *testing.T) {
	setupServer(t)

	out, err := run(t, "draft", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "no draft")
}
