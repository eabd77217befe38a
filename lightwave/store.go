package lightwave

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a durable single slot holding the latest token endpoint response.
// Load returns ErrNoSnapshot when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, snapshot []byte) error
}

// DefaultSnapshotPath returns the per-user location used by the CLI:
// <user config dir>/linkplus/auth_response.json.
func DefaultSnapshotPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "linkplus", "auth_response.json"), nil
}

// FileStore keeps the snapshot in a single file. Saves replace the whole file
// atomically while holding a lock file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the snapshot file.
func (f *FileStore) Load(ctx context.Context) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read token snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoSnapshot
	}
	return data, nil
}

// Save overwrites the snapshot file.
func (f *FileStore) Save(ctx context.Context, snapshot []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(snapshot) == 0 {
		return fmt.Errorf("%w: empty snapshot", ErrInvalidArgument)
	}

	dir := filepath.Dir(f.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	lock, err := acquireSnapshotLock(ctx, f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		_ = lock.release()
	}()

	tempFile := f.path + ".tmp"
	if err := os.WriteFile(tempFile, snapshot, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Delete removes the snapshot file. A missing file is not an error.
func (f *FileStore) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete token snapshot: %w", err)
	}
	return nil
}

// MemoryStore keeps the snapshot in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot []byte
	saves    int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.snapshot == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), m.snapshot...), nil
}

func (m *MemoryStore) Save(ctx context.Context, snapshot []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = append([]byte(nil), snapshot...)
	m.saves++
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = nil
	return nil
}

// Saves returns how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
