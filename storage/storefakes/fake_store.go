package storefakes

import (
	"sync"

	"github.com/spenselabs/partnersdk/storage"
)

var _ storage.Store = (*FakeStore)(nil)

// FakeStore is an in-memory storage.Store for tests.
type FakeStore struct {
	lock   sync.RWMutex
	values map[string]string

	// SetErr, when non-nil, is returned from every Set call.
	SetErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (fs *FakeStore) Get(key string) (string, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	value, ok := fs.values[key]
	return value, ok
}

func (fs *FakeStore) Set(key, value string) error {
	if fs.SetErr != nil {
		return fs.SetErr
	}
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Clear(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	delete(fs.values, key)
	return nil
}

// Len reports the number of stored keys.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.values)
}
