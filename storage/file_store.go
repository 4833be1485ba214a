package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var _ Store = (*FileStore)(nil)

// FileStore persists values as a JSON object in a single file with owner-only
// permissions. Writes are write-through; every Set/Clear rewrites the file.
type FileStore struct {
	path   string
	lock   sync.RWMutex
	values map[string]string
}

// NewFileStore loads (or creates) the store file at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[NewFileStore] path is required")
	}
	fs := &FileStore{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] read store file")
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fs.values); err != nil {
			return nil, errors.Wrap(err, "[NewFileStore] corrupt store file")
		}
	}
	return fs, nil
}

func (fs *FileStore) Get(key string) (string, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	value, ok := fs.values[key]
	return value, ok
}

func (fs *FileStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.values[key] = value
	return fs.flush()
}

func (fs *FileStore) Clear(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if _, ok := fs.values[key]; !ok {
		return nil
	}
	delete(fs.values, key)
	return fs.flush()
}

// flush writes the current map to disk. Callers must hold the write lock.
func (fs *FileStore) flush() error {
	data, err := json.MarshalIndent(fs.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileStore.flush] marshal")
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.flush] mkdir")
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.flush] write")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.flush] rename")
	}
	return nil
}
