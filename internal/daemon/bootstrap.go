package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// ErrAlreadyRunning is returned by StartDaemon when a live daemon is registered.
var ErrAlreadyRunning = fmt.Errorf("daemon already running")

// StartDaemon spawns the scheduler daemon from the current executable,
// unless the registry shows one already alive. extraArgs are passed to the
// hidden "daemon" command (e.g. --config).
func StartDaemon(registry domain.DaemonRegistry, extraArgs ...string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	return StartDaemonWithPath(executable, registry, extraArgs...)
}

// StartDaemonWithPath spawns the daemon from a specific binary path.
func StartDaemonWithPath(binaryPath string, registry domain.DaemonRegistry, extraArgs ...string) error {
	alive, err := registry.IsAlive()
	if err != nil {
		return fmt.Errorf("failed to check daemon: %w", err)
	}
	if alive {
		return ErrAlreadyRunning
	}

	cmd := daemonCommand(binaryPath, extraArgs...)
	return cmd.Start()
}

// daemonCommand builds the detached self-exec command:
// focusgate daemon [extraArgs...]
func daemonCommand(binaryPath string, extraArgs ...string) *exec.Cmd {
	args := append([]string{"daemon"}, extraArgs...)
	cmd := exec.Command(binaryPath, args...)

	// New session: the daemon survives the terminal that started it.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// No stdin/stdout/stderr - the daemon logs to its own file.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd
}

// StopDaemon terminates the registered daemon if it is alive.
// It reports whether a daemon was signaled.
func StopDaemon(registry domain.DaemonRegistry, pm domain.ProcessManager) (bool, error) {
	d, err := registry.Get()
	if err != nil {
		return false, err
	}
	if d == nil || !pm.IsRunning(d.PID) {
		if d != nil {
			_ = registry.Clear()
		}
		return false, nil
	}
	if err := pm.Terminate(d.PID); err != nil {
		return false, fmt.Errorf("failed to stop daemon (pid %d): %w", d.PID, err)
	}
	return true, nil
}
