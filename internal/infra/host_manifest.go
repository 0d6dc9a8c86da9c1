package infra

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// NativeHostName is the native messaging host name the extension connects to.
const NativeHostName = "com.focusgate.host"

// hostManifest is the browser's native messaging host manifest.
type hostManifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// HostManifestManager registers the native messaging host with Chrome.
// Browsers start the host without arguments of our choosing, so the
// manifest points at a wrapper script that runs "focusgate native-host".
type HostManifestManager struct {
	manifestDir string
	wrapperPath string
}

// NewHostManifestManager uses Chrome's per-user manifest directory for
// the current OS. The wrapper script lives in dataDir.
func NewHostManifestManager(dataDir string) *HostManifestManager {
	home, _ := os.UserHomeDir()
	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "NativeMessagingHosts")
	default:
		dir = filepath.Join(home, ".config", "google-chrome", "NativeMessagingHosts")
	}
	return NewHostManifestManagerWithDir(dir, dataDir)
}

// NewHostManifestManagerWithDir writes the manifest into manifestDir.
func NewHostManifestManagerWithDir(manifestDir, dataDir string) *HostManifestManager {
	return &HostManifestManager{
		manifestDir: manifestDir,
		wrapperPath: filepath.Join(dataDir, "native-host.sh"),
	}
}

// Install writes the wrapper script and the manifest allowing the given
// extension IDs.
func (m *HostManifestManager) Install(execPath string, args []string, extensionIDs []string) error {
	if len(extensionIDs) == 0 {
		return fmt.Errorf("at least one extension ID is required")
	}

	if err := os.MkdirAll(filepath.Dir(m.wrapperPath), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(m.wrapperPath, []byte(wrapperScript(execPath, args)), 0700); err != nil {
		return fmt.Errorf("failed to write host wrapper: %w", err)
	}

	manifest := hostManifest{
		Name:        NativeHostName,
		Description: "focusgate policy engine",
		Path:        m.wrapperPath,
		Type:        "stdio",
	}
	for _, id := range extensionIDs {
		manifest.AllowedOrigins = append(manifest.AllowedOrigins, "chrome-extension://"+id+"/")
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.manifestDir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(m.Path(), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write host manifest: %w", err)
	}
	return nil
}

// Uninstall removes the manifest and the wrapper. Missing files are fine.
func (m *HostManifestManager) Uninstall() error {
	for _, path := range []string{m.Path(), m.wrapperPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// IsInstalled checks if the manifest exists.
func (m *HostManifestManager) IsInstalled() bool {
	_, err := os.Stat(m.Path())
	return err == nil
}

// Path returns the manifest file path.
func (m *HostManifestManager) Path() string {
	return filepath.Join(m.manifestDir, NativeHostName+".json")
}

// WrapperPath returns the wrapper script path.
func (m *HostManifestManager) WrapperPath() string {
	return m.wrapperPath
}

func wrapperScript(execPath string, args []string) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\nexec ")
	b.WriteString(shellQuote(execPath))
	b.WriteString(" native-host")
	for _, a := range args {
		b.WriteString(" ")
		b.WriteString(shellQuote(a))
	}
	b.WriteString(" \"$@\"\n")
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
