package locale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Storage is the persisted cache collaborator.
//
// Load returns the cached table and fails if the document is absent or
// malformed. Save overwrites the document in full.
type Storage interface {
	Load(ctx context.Context) (Table, error)
	Save(ctx context.Context, table Table) error
}

// File storage constants.
const (
	// cacheDirPermissions is the permission mode for the cache directory.
	cacheDirPermissions = 0750

	// cacheFilePermissions is the permission mode for the cache file.
	cacheFilePermissions = 0600
)

// cacheDocument is the on-disk cache shape: {"locale_list": [...]}.
type cacheDocument struct {
	LocaleList *Table `json:"locale_list"`
}

// FileStorage keeps the locale table in a JSON file.
type FileStorage struct {
	path string
}

// Ensure FileStorage implements Storage.
var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a file-backed cache at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the cache file path.
func (f *FileStorage) Path() string {
	return f.path
}

// Load reads and parses the cache file.
//
// Returns:
//   - Table: cached locales in file order
//   - error: ErrCacheMissing if the file does not exist, ErrCacheMalformed
//     if it is not valid JSON or has no locale_list
func (f *FileStorage) Load(_ context.Context) (Table, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCacheMissing, f.path)
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheMalformed, err)
	}
	if doc.LocaleList == nil {
		return nil, fmt.Errorf("%w: locale_list is missing", ErrCacheMalformed)
	}

	return *doc.LocaleList, nil
}

// Save writes the table to the cache file.
//
// The document is written to a temporary file in the same directory and
// renamed over the cache, so readers never see a truncated file.
func (f *FileStorage) Save(_ context.Context, table Table) error {
	if table == nil {
		table = Table{}
	}

	data, err := json.MarshalIndent(cacheDocument{LocaleList: &table}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling cache: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, cacheDirPermissions); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Write error takes precedence
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Chmod(cacheFilePermissions); err != nil {
		tmp.Close() //nolint:errcheck // Chmod error takes precedence
		return fmt.Errorf("setting cache permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// MemoryStorage keeps the cache in memory. It is used by one-shot tooling
// and tests that should not touch the filesystem.
type MemoryStorage struct {
	mu      sync.Mutex
	table   Table
	present bool
	saves   int
}

// Ensure MemoryStorage implements Storage.
var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an in-memory cache seeded with table.
func NewMemoryStorage(table Table) *MemoryStorage {
	return &MemoryStorage{table: table.Clone(), present: true}
}

// Load returns a copy of the stored table.
func (m *MemoryStorage) Load(_ context.Context) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.present {
		return nil, ErrCacheMissing
	}
	return m.table.Clone(), nil
}

// Save replaces the stored table.
func (m *MemoryStorage) Save(_ context.Context, table Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table = table.Clone()
	m.present = true
	m.saves++
	return nil
}

// Table returns a copy of the last saved table.
func (m *MemoryStorage) Table() Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Clone()
}

// Saves returns how many times Save has been called.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
