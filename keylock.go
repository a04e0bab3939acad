package blobdir

import "sync"

// keyLocks is the process-wide pool of per-key exclusive locks that
// serializes cache population and publish for a given storage key.
// Entries are created lazily and retained for the life of the directory;
// the key space is bounded by the index's own file set, so the registry
// only ever grows.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// get returns the lock for name, creating it on first use.
func (k *keyLocks) get(name string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[name]
	if !ok {
		m = &sync.Mutex{}
		k.locks[name] = m
	}
	return m
}
