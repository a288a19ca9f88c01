package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".samocode")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadProject(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
# project settings
REPO=repo
WORKTREES=worktrees
SESSIONS=sessions
`)

	p, err := LoadProject(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "repo"), p.Repo, "relative paths resolve against the config dir")
	assert.Equal(t, filepath.Join(dir, "worktrees"), p.Worktrees)
	assert.Equal(t, filepath.Join(dir, "sessions"), p.Sessions)
}

func TestLoadProject_AbsolutePathsKept(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "WORKTREES=/data/worktrees\nSESSIONS=/data/sessions\n")

	p, err := LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/worktrees", p.Worktrees)
	assert.Equal(t, "/data/sessions", p.Sessions)
	assert.Empty(t, p.Repo, "REPO is optional")
}

func TestLoadProject_InlineHashKept(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "WORKTREES=/data/work#trees\nSESSIONS=/data/sessions\n")

	p, err := LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/work#trees", p.Worktrees, "# inside a value is not a comment")
}

func TestLoadProject_Required(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "missing sessions", content: "WORKTREES=/w\n", wantErr: "SESSIONS is required"},
		{name: "missing worktrees", content: "SESSIONS=/s\n", wantErr: "WORKTREES is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadProject(writeConfig(t, t.TempDir(), tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadProject_FileNotFound(t *testing.T) {
	_, err := LoadProject(filepath.Join(t.TempDir(), ".samocode"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadRuntime_Defaults(t *testing.T) {
	for _, key := range []string{"CLAUDE_PATH", "CLAUDE_MODEL", "CLAUDE_MAX_TURNS", "CLAUDE_TIMEOUT",
		"SAMOCODE_MAX_RETRIES", "SAMOCODE_RETRY_DELAY", "GIT_BRANCH_PREFIX", "NOTIFY_CHANNELS"} {
		t.Setenv(key, "")
	}

	r := LoadRuntime()
	assert.Equal(t, "claude", r.ClaudePath)
	assert.Equal(t, "opus", r.Model)
	assert.Equal(t, 120, r.MaxTurns)
	assert.Equal(t, 1800, r.TimeoutSec)
	assert.Equal(t, 3, r.MaxRetries)
	assert.Equal(t, 5, r.RetryDelaySec)
	assert.Empty(t, r.Notify.Channels)
}

func TestLoadRuntime_FromEnv(t *testing.T) {
	t.Setenv("CLAUDE_MODEL", "sonnet")
	t.Setenv("CLAUDE_TIMEOUT", "600")
	t.Setenv("CLAUDE_MAX_TURNS", "bogus")
	t.Setenv("NOTIFY_CHANNELS", "telegram, slack ,")
	t.Setenv("NOTIFY_WEBHOOK_URLS", "https://a.example,https://b.example")

	r := LoadRuntime()
	assert.Equal(t, "sonnet", r.Model)
	assert.Equal(t, 600, r.TimeoutSec)
	assert.Equal(t, 120, r.MaxTurns, "unparseable int falls back to default")
	assert.Equal(t, []string{"telegram", "slack"}, r.Notify.Channels)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, r.Notify.WebhookURLs)
}

func TestValidate(t *testing.T) {
	valid := Config{Runtime: Runtime{ClaudePath: "claude", MaxTurns: 10, TimeoutSec: 60, MaxRetries: 1}}
	assert.Empty(t, valid.Validate())

	t.Run("bad numbers", func(t *testing.T) {
		c := Config{Runtime: Runtime{ClaudePath: "claude", MaxTurns: 0, TimeoutSec: 0, MaxRetries: 0}}
		errs := c.Validate()
		assert.Len(t, errs, 3)
	})

	t.Run("missing repo dir", func(t *testing.T) {
		c := valid
		c.Project.Repo = filepath.Join(t.TempDir(), "nope")
		errs := c.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "repo path does not exist")
	})

	t.Run("explicit claude path must exist", func(t *testing.T) {
		c := valid
		c.Runtime.ClaudePath = filepath.Join(t.TempDir(), "bin", "claude")
		errs := c.Validate()
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "claude CLI not found")
	})
}
