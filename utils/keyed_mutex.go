package utils

import "sync"

// KeyedMutex serializes callers sharing a key while letting distinct keys
// proceed in parallel. Entries are dropped once no caller holds or waits on
// them.
type KeyedMutex struct {
	mutex sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns the matching unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mutex.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mutex.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		k.mutex.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mutex.Unlock()
	}
}

func (k *KeyedMutex) Len() int {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return len(k.locks)
}

// PairKey returns the same key for (a, b) and (b, a).
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
