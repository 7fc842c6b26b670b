package tokenstore

import "sync"

var _ Store = (*MemoryStore)(nil)
var _ Batcher = (*MemoryStore)(nil)

// MemoryStore keeps values for the lifetime of the process
type MemoryStore struct {
	values map[Key]string
	lock   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string)}
}

func (ms *MemoryStore) Get(key Key) (*string, error) {
	ms.lock.RLock()
	defer ms.lock.RUnlock()
	v, ok := ms.values[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (ms *MemoryStore) Set(key Key, value string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.values[key] = value
	return nil
}

func (ms *MemoryStore) Remove(key Key) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	delete(ms.values, key)
	return nil
}

func (ms *MemoryStore) Clear() error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	ms.values = make(map[Key]string)
	return nil
}

func (ms *MemoryStore) Apply(set map[Key]string, remove []Key) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()
	for k, v := range set {
		ms.values[k] = v
	}
	for _, k := range remove {
		delete(ms.values, k)
	}
	return nil
}

// Len reports how many keys are held
func (ms *MemoryStore) Len() int {
	ms.lock.RLock()
	defer ms.lock.RUnlock()
	return len(ms.values)
}
