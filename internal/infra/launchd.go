package infra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// LaunchAgentLabel is the launchd label of the scheduler daemon.
const LaunchAgentLabel = "com.focusgate.scheduler"

// LaunchAgent plist template (runs as user)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

type plistConfig struct {
	Label          string
	ExecutablePath string
	Args           []string
	ErrorLogPath   string
}

// LaunchdManagerImpl implements domain.AutostartManager with a LaunchAgent.
type LaunchdManagerImpl struct {
	plistDir  string
	plistPath string
	logDir    string

	// launchctl runs launchctl; replaced in tests.
	launchctl func(args ...string) error
}

// NewLaunchAgentManager creates a manager for ~/Library/LaunchAgents.
// dataDir receives the daemon's stderr log.
func NewLaunchAgentManager(dataDir string) domain.AutostartManager {
	home, _ := os.UserHomeDir()
	return NewLaunchAgentManagerWithDir(filepath.Join(home, "Library", "LaunchAgents"), dataDir)
}

// NewLaunchAgentManagerWithDir creates a manager writing into plistDir.
func NewLaunchAgentManagerWithDir(plistDir, dataDir string) *LaunchdManagerImpl {
	return &LaunchdManagerImpl{
		plistDir:  plistDir,
		plistPath: filepath.Join(plistDir, LaunchAgentLabel+".plist"),
		logDir:    dataDir,
		launchctl: func(args ...string) error {
			return exec.Command("launchctl", args...).Run()
		},
	}
}

// generatePlistContent creates plist content for the given exec path.
func (m *LaunchdManagerImpl) generatePlistContent(execPath string, args []string) ([]byte, error) {
	config := plistConfig{
		Label:          LaunchAgentLabel,
		ExecutablePath: execPath,
		Args:           args,
		ErrorLogPath:   filepath.Join(m.logDir, "focusgate.error.log"),
	}

	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}

	return buf.Bytes(), nil
}

// Install creates and loads the LaunchAgent. An existing agent is
// replaced.
func (m *LaunchdManagerImpl) Install(execPath string, args []string) error {
	if err := os.MkdirAll(m.plistDir, 0755); err != nil {
		return err
	}

	content, err := m.generatePlistContent(execPath, args)
	if err != nil {
		return fmt.Errorf("failed to generate plist content: %w", err)
	}

	if m.IsInstalled() {
		// Ignore errors if not loaded
		_ = m.launchctl("unload", m.plistPath)
	}
	if err := os.WriteFile(m.plistPath, content, 0644); err != nil {
		return err
	}

	return m.launchctl("load", m.plistPath)
}

// Uninstall unloads and removes the plist. A missing plist is not an error.
func (m *LaunchdManagerImpl) Uninstall() error {
	if !m.IsInstalled() {
		return nil
	}
	_ = m.launchctl("unload", m.plistPath)

	if err := os.Remove(m.plistPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsInstalled checks if plist is installed.
func (m *LaunchdManagerImpl) IsInstalled() bool {
	_, err := os.Stat(m.plistPath)
	return err == nil
}

// NeedsUpdate checks if plist exists but has different content than expected.
func (m *LaunchdManagerImpl) NeedsUpdate(execPath string, args []string) bool {
	if !m.IsInstalled() {
		return false // Doesn't exist, needs install not update
	}

	currentContent, err := os.ReadFile(m.plistPath)
	if err != nil {
		return true
	}

	expectedContent, err := m.generatePlistContent(execPath, args)
	if err != nil {
		return true
	}

	return !bytes.Equal(currentContent, expectedContent)
}

// Path returns the plist file path.
func (m *LaunchdManagerImpl) Path() string {
	return m.plistPath
}

// Ensure LaunchdManagerImpl implements domain.AutostartManager.
var _ domain.AutostartManager = (*LaunchdManagerImpl)(nil)
