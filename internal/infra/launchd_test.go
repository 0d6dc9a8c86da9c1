package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLaunchd(t *testing.T) (*LaunchdManagerImpl, *[][]string) {
	t.Helper()
	dir := t.TempDir()
	m := NewLaunchAgentManagerWithDir(filepath.Join(dir, "LaunchAgents"), filepath.Join(dir, "data"))
	var calls [][]string
	m.launchctl = func(args ...string) error {
		calls = append(calls, args)
		return nil
	}
	return m, &calls
}

func TestLaunchd_InstallWritesPlistAndLoads(t *testing.T) {
	m, calls := newTestLaunchd(t)

	require.NoError(t, m.Install("/usr/local/bin/focusgate", []string{"--store", "file"}))
	assert.True(t, m.IsInstalled())

	content, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "<string>"+LaunchAgentLabel+"</string>")
	assert.Contains(t, string(content), "<string>/usr/local/bin/focusgate</string>\n        <string>daemon</string>\n        <string>--store</string>\n        <string>file</string>")
	assert.Equal(t, [][]string{{"load", m.Path()}}, *calls)
}

func TestLaunchd_ReinstallUnloadsFirst(t *testing.T) {
	m, calls := newTestLaunchd(t)

	require.NoError(t, m.Install("/usr/local/bin/focusgate", nil))
	require.NoError(t, m.Install("/opt/focusgate", nil))

	assert.Equal(t, [][]string{
		{"load", m.Path()},
		{"unload", m.Path()},
		{"load", m.Path()},
	}, *calls)
}

func TestLaunchd_NeedsUpdate(t *testing.T) {
	m, _ := newTestLaunchd(t)

	assert.False(t, m.NeedsUpdate("/usr/local/bin/focusgate", nil), "not installed")

	require.NoError(t, m.Install("/usr/local/bin/focusgate", nil))
	assert.False(t, m.NeedsUpdate("/usr/local/bin/focusgate", nil))
	assert.True(t, m.NeedsUpdate("/opt/focusgate", nil))
	assert.True(t, m.NeedsUpdate("/usr/local/bin/focusgate", []string{"--store", "file"}))
}

func TestLaunchd_Uninstall(t *testing.T) {
	m, calls := newTestLaunchd(t)

	require.NoError(t, m.Uninstall(), "missing plist is fine")
	assert.Empty(t, *calls)

	require.NoError(t, m.Install("/usr/local/bin/focusgate", nil))
	require.NoError(t, m.Uninstall())
	assert.False(t, m.IsInstalled())
	assert.Equal(t, []string{"unload", m.Path()}, (*calls)[len(*calls)-1])
}
