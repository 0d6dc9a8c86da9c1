package domain

import "context"

// StateStore persists the engine state.
// Implementations: encrypted SQLite (default), JSON file, in-memory.
type StateStore interface {
	// Load returns a snapshot of the latest committed state.
	Load(ctx context.Context) (State, error)

	// Update runs fn inside a read-modify-write transaction. fn receives the
	// latest committed state and mutates it in place. If fn returns an error
	// nothing is written and the error is returned unchanged.
	Update(ctx context.Context, fn func(*State) error) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// Notifier receives events after a change has been committed.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f(event).
func (f NotifierFunc) Notify(event Event) { f(event) }

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int

	// Terminate asks a process to exit (SIGTERM).
	Terminate(pid int) error
}

// DaemonRegistry records the running scheduler daemon so the CLI can
// report on it and avoid starting a second one.
// Implementations: JSON file in the data directory, or a table in the
// encrypted store.
type DaemonRegistry interface {
	// Register saves the daemon's PID.
	Register(daemon Daemon) error

	// Get returns the registered daemon, or nil if none is registered.
	Get() (*Daemon, error)

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// IsAlive checks if the registered daemon is still running.
	IsAlive() (bool, error)

	// Clear removes the registration (for clean restart).
	Clear() error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// AutostartManager installs the login item that starts the scheduler
// daemon. Implementation: a macOS LaunchAgent.
type AutostartManager interface {
	// Install writes the agent for execPath and loads it.
	Install(execPath string, args []string) error

	// Uninstall unloads and removes the agent.
	Uninstall() error

	// IsInstalled checks if the agent file exists.
	IsInstalled() bool

	// NeedsUpdate reports whether the installed agent differs from what
	// Install would write.
	NeedsUpdate(execPath string, args []string) bool

	// Path returns the agent file path.
	Path() string
}
