package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName   = "focusgate.db"
	schemaVersion = "1"
)

// EncryptedStore implements domain.StateStore and domain.DaemonRegistry
// using a SQLCipher encrypted SQLite database. Patterns, the session and
// the settings live in separate tables; a transaction covers all three.
type EncryptedStore struct {
	db             *sql.DB
	dbPath         string
	processManager domain.ProcessManager
}

// NewEncryptedStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, pm domain.ProcessManager) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// BEGIN IMMEDIATE takes the write lock up front, so a transaction's
	// read already sees the state it will commit against.
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_txlock=immediate&_busy_timeout=5000",
		dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:             db,
		dbPath:         dbPath,
		processManager: pm,
	}

	// Fails here when the key is wrong: the file does not decrypt.
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		raw TEXT NOT NULL UNIQUE,
		enabled INTEGER NOT NULL,
		temporary INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		seq INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		goal_text TEXT NOT NULL,
		goal_set_at INTEGER NOT NULL,
		goal_completed INTEGER NOT NULL,
		locked INTEGER NOT NULL,
		focus_enabled INTEGER NOT NULL,
		last_reset_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		reset_hour INTEGER NOT NULL,
		strict_mode INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion)
	return err
}

// --- domain.StateStore implementation ---

// Load returns the latest committed state.
func (s *EncryptedStore) Load(ctx context.Context) (domain.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return loadState(ctx, tx)
}

// Update runs fn inside a single immediate transaction.
func (s *EncryptedStore) Update(ctx context.Context, fn func(*domain.State) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	state, err := loadState(ctx, tx)
	if err != nil {
		return err
	}
	if err := fn(&state); err != nil {
		return err
	}
	if err := writeState(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func loadState(ctx context.Context, tx *sql.Tx) (domain.State, error) {
	state := domain.InitialState()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, raw, enabled, temporary, created_at FROM patterns ORDER BY seq`)
	if err != nil {
		return domain.State{}, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Pattern
		var created int64
		if err := rows.Scan(&p.ID, &p.Raw, &p.Enabled, &p.Temporary, &created); err != nil {
			return domain.State{}, err
		}
		p.CreatedAt = fromUnixNano(created)
		state.Patterns = append(state.Patterns, p)
	}
	if err := rows.Err(); err != nil {
		return domain.State{}, err
	}

	var goalSetAt, lastReset int64
	err = tx.QueryRowContext(ctx, `
		SELECT goal_text, goal_set_at, goal_completed, locked, focus_enabled, last_reset_at
		FROM session WHERE id = 1`).Scan(
		&state.Session.GoalText, &goalSetAt, &state.Session.GoalCompleted,
		&state.Session.Locked, &state.Session.FocusEnabled, &lastReset,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return domain.State{}, fmt.Errorf("failed to query session: %w", err)
	default:
		state.Session.GoalSetAt = fromUnixNano(goalSetAt)
		state.Session.LastResetAt = fromUnixNano(lastReset)
	}

	err = tx.QueryRowContext(ctx, `SELECT reset_hour, strict_mode FROM settings WHERE id = 1`).Scan(
		&state.Settings.ResetHour, &state.Settings.StrictMode,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.State{}, fmt.Errorf("failed to query settings: %w", err)
	}

	return state, nil
}

func writeState(ctx context.Context, tx *sql.Tx, state domain.State) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM patterns`); err != nil {
		return fmt.Errorf("failed to clear patterns: %w", err)
	}
	for i, p := range state.Patterns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO patterns (id, raw, enabled, temporary, created_at, seq)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Raw, p.Enabled, p.Temporary, toUnixNano(p.CreatedAt), i,
		)
		if err != nil {
			return fmt.Errorf("failed to write pattern %q: %w", p.Raw, err)
		}
	}

	ss := state.Session
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO session (id, goal_text, goal_set_at, goal_completed, locked, focus_enabled, last_reset_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		ss.GoalText, toUnixNano(ss.GoalSetAt), ss.GoalCompleted, ss.Locked, ss.FocusEnabled, toUnixNano(ss.LastResetAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (id, reset_hour, strict_mode) VALUES (1, ?, ?)`,
		state.Settings.ResetHour, state.Settings.StrictMode,
	)
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// --- domain.DaemonRegistry implementation ---

// Register records the daemon, replacing any previous registration.
func (s *EncryptedStore) Register(daemon domain.Daemon) error {
	now := time.Now()
	if daemon.StartedAt.IsZero() {
		daemon.StartedAt = now
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (role, pid, started_at, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, daemon.StartedAt.Unix(), now.Unix(), daemon.AppVersion,
	)
	if err != nil {
		return err
	}
	if daemon.AppVersion != "" {
		_, err = s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('app_version', ?)`, daemon.AppVersion)
	}
	return err
}

// Get returns the registered scheduler daemon, or nil if none.
func (s *EncryptedStore) Get() (*domain.Daemon, error) {
	var d domain.Daemon
	var role string
	var started, heartbeat int64
	err := s.db.QueryRow(`
		SELECT role, pid, started_at, last_heartbeat, app_version
		FROM daemon_state WHERE role = ?`, string(domain.RoleScheduler)).Scan(
		&role, &d.PID, &started, &heartbeat, &d.AppVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Role = domain.DaemonRole(role)
	d.StartedAt = time.Unix(started, 0)
	d.LastHeartbeat = time.Unix(heartbeat, 0)
	return &d, nil
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat() error {
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		time.Now().Unix(), string(domain.RoleScheduler))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("daemon %s not registered", domain.RoleScheduler)
	}
	return nil
}

// IsAlive checks if the registered daemon is running via PID.
func (s *EncryptedStore) IsAlive() (bool, error) {
	d, err := s.Get()
	if err != nil {
		return false, err
	}
	if d == nil || d.PID == 0 {
		return false, nil
	}
	return s.processManager.IsRunning(d.PID), nil
}

// Clear removes the daemon registration.
func (s *EncryptedStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM daemon_state`); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM meta WHERE key = 'app_version'`)
	return err
}

// GetRegistryPath returns the database file path.
func (s *EncryptedStore) GetRegistryPath() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements both interfaces.
var _ domain.StateStore = (*EncryptedStore)(nil)
var _ domain.DaemonRegistry = (*EncryptedStore)(nil)
