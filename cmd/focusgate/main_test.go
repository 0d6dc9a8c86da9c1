package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// run executes the CLI against an isolated data directory.
func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()

	base := []string{
		"--config", filepath.Join(dataDir, "missing.yaml"),
		"--data-dir", dataDir,
		"--store", "file",
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(base, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := run(t, t.TempDir(), "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
	assert.Equal(t, Commit, v["commit"])
}

func TestCLI_SessionLifecycle(t *testing.T) {
	dir := t.TempDir()

	check := func(url string) domain.Decision {
		t.Helper()
		out, err := run(t, dir, "--json", "check", url)
		require.NoError(t, err)
		var d domain.Decision
		require.NoError(t, json.Unmarshal([]byte(out), &d))
		return d
	}

	d := check("https://github.com/golang/go")
	assert.False(t, d.Allowed)
	assert.True(t, d.Locked)

	_, err := run(t, dir, "goal", "set", "ship", "the", "release", "notes")
	require.NoError(t, err)

	out, err := run(t, dir, "pattern", "add", "github.com/**")
	require.NoError(t, err)
	assert.Contains(t, out, "Added github.com/**")

	assert.True(t, check("https://github.com/golang/go").Allowed)
	assert.False(t, check("https://news.ycombinator.com").Allowed)

	out, err = run(t, dir, "focus", "toggle")
	require.NoError(t, err)
	assert.Contains(t, out, "Focus mode: off")
	assert.True(t, check("https://news.ycombinator.com").Allowed)

	out, err = run(t, dir, "--json", "status")
	require.NoError(t, err)
	var status struct {
		State         domain.SessionState `json:"state"`
		Goal          string              `json:"goal"`
		DaemonRunning bool                `json:"daemon_running"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, domain.StateUnlockedFocusOff, status.State)
	assert.Equal(t, "ship the release notes", status.Goal)
	assert.False(t, status.DaemonRunning)

	_, err = run(t, dir, "reset")
	require.NoError(t, err)
	assert.True(t, check("https://github.com/golang/go").Locked)
}

func TestCLI_GoalTooShort(t *testing.T) {
	_, err := run(t, t.TempDir(), "goal", "set", "work")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goal")
}

func TestCLI_CheckExitCode(t *testing.T) {
	_, err := run(t, t.TempDir(), "check", "--exit-code", "https://example.com")
	assert.ErrorIs(t, err, errBlocked)
}

func TestCLI_PatternManagement(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "--json", "pattern", "whitelist", "--option", "domain-wildcard", "https://docs.python.org/3/")
	require.NoError(t, err)
	var added map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	id := added["id"]
	require.NotEmpty(t, id)

	_, err = run(t, dir, "pattern", "disable", id)
	require.NoError(t, err)

	out, err = run(t, dir, "--json", "pattern", "list")
	require.NoError(t, err)
	var patterns []domain.Pattern
	require.NoError(t, json.Unmarshal([]byte(out), &patterns))
	require.Len(t, patterns, 1)
	assert.Equal(t, "*.docs.python.org", patterns[0].Raw)
	assert.False(t, patterns[0].Enabled)

	_, err = run(t, dir, "pattern", "rm", id)
	require.NoError(t, err)
	_, err = run(t, dir, "pattern", "rm", id)
	assert.Error(t, err)

	out, err = run(t, dir, "pattern", "test", "github.com/*/go", "https://github.com/golang/go")
	require.NoError(t, err)
	assert.Contains(t, out, "matches github.com/golang/go")

	out, err = run(t, dir, "pattern", "suggest", "https://github.com/golang/go")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestCLI_Settings(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, dir, "settings", "--reset-hour", "6", "--strict-mode=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset hour:  06:00")
	assert.Contains(t, out, "Strict mode: off")

	_, err = run(t, dir, "settings", "--reset-hour", "24")
	assert.Error(t, err)
}

func TestCLI_ExportImport(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	file := filepath.Join(t.TempDir(), "export.json")

	_, err := run(t, src, "pattern", "add", "github.com/**")
	require.NoError(t, err)
	_, err = run(t, src, "settings", "--reset-hour", "7")
	require.NoError(t, err)

	out, err := run(t, src, "export", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 patterns")

	_, err = run(t, dst, "import", file)
	require.NoError(t, err)

	out, err = run(t, dst, "--json", "pattern", "list")
	require.NoError(t, err)
	var patterns []domain.Pattern
	require.NoError(t, json.Unmarshal([]byte(out), &patterns))
	require.Len(t, patterns, 1)
	assert.Equal(t, "github.com/**", patterns[0].Raw)

	out, err = run(t, dst, "--json", "settings")
	require.NoError(t, err)
	var settings domain.Settings
	require.NoError(t, json.Unmarshal([]byte(out), &settings))
	assert.Equal(t, 7, settings.ResetHour)
}

func TestCLI_ClearRequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "pattern", "add", "github.com/**")
	require.NoError(t, err)

	_, err = run(t, dir, "clear")
	require.Error(t, err)

	_, err = run(t, dir, "clear", "--yes")
	require.NoError(t, err)

	out, err := run(t, dir, "--json", "pattern", "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestDaemonArgs(t *testing.T) {
	opts := &options{configPath: "/etc/fg.yaml", store: "file"}
	assert.Equal(t, []string{"--config", "/etc/fg.yaml", "--store", "file"}, opts.daemonArgs())
	assert.Empty(t, (&options{}).daemonArgs())
}
