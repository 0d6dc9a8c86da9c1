package infra

import (
	"fmt"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// Store kinds accepted by OpenStore.
const (
	StoreEncrypted = "encrypted"
	StoreFile      = "file"
	StoreMemory    = "memory"
)

// OpenStore opens the state store of the given kind under dataDir along
// with the daemon registry that goes with it. The encrypted store doubles
// as its own registry; the others use a JSON registry file.
func OpenStore(kind, dataDir string, pm domain.ProcessManager) (domain.StateStore, domain.DaemonRegistry, error) {
	switch kind {
	case StoreEncrypted, "":
		key, err := EnsureKey(NewFileKeyProvider(dataDir))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load store key: %w", err)
		}
		s, err := NewEncryptedStore(dataDir, key, pm)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case StoreFile:
		s, err := NewFileStore(dataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, NewFileRegistry(dataDir, pm), nil
	case StoreMemory:
		return NewMemoryStore(), NewFileRegistry(dataDir, pm), nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
