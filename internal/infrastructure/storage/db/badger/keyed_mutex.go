package dbbadger

import "sync"

// keyedMutex serializes mutations per aggregate key. Locks are held only for
// the duration of the local store transaction, never across network calls.
type keyedMutex struct {
	mtx   sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mtx.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mtx.Unlock()

	lock.Lock()
	return lock.Unlock
}
