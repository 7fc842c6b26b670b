package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

var _ Store = (*FileStore)(nil)
var _ Batcher = (*FileStore)(nil)

// FileStore keeps values in a single JSON document on disk. Every write
// replaces the file atomically (write to temp file, then rename).
type FileStore struct {
	path   string
	values map[Key]string
	lock   sync.RWMutex
}

// OpenFileStore loads path if it exists. The parent directory is created on first write.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, values: make(map[Key]string)}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return fs, nil
	case err != nil:
		return nil, errors.Wrapf(err, "[OpenFileStore] read %s", path)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fs.values); err != nil {
			return nil, errors.Wrapf(err, "[OpenFileStore] decode %s", path)
		}
	}
	return fs, nil
}

func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(key Key) (*string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	v, ok := fs.values[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (fs *FileStore) Set(key Key, value string) error {
	return fs.Apply(map[Key]string{key: value}, nil)
}

func (fs *FileStore) Remove(key Key) error {
	return fs.Apply(nil, []Key{key})
}

// Clear deletes the file. Every key the store wrote lives in it.
func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.values = make(map[Key]string)
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "[FileStore.Clear] remove %s", fs.path)
	}
	return nil
}

func (fs *FileStore) Apply(set map[Key]string, remove []Key) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	next := make(map[Key]string, len(fs.values)+len(set))
	for k, v := range fs.values {
		next[k] = v
	}
	for k, v := range set {
		next[k] = v
	}
	for _, k := range remove {
		delete(next, k)
	}

	if err := fs.write(next); err != nil {
		return err
	}
	fs.values = next
	return nil
}

func (fs *FileStore) write(values map[Key]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return errors.Wrapf(err, "[FileStore] encode")
	}
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "[FileStore] mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tokenstore-*")
	if err != nil {
		return errors.Wrapf(err, "[FileStore] temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "[FileStore] write")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "[FileStore] chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "[FileStore] close")
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return errors.Wrapf(err, "[FileStore] rename")
	}
	return nil
}
