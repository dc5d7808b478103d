package manager

import "sync"

// keyLocks serialises work per key. Entries are dropped once nobody holds or
// waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock blocks until key is free and returns its release function
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size is the number of live entries
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}

func gameKey(id string) string       { return "game:" + id }
func trainingKey(id string) string   { return "training:" + id }
func invitationKey(id string) string { return "invitation:" + id }

// pairKey is the same for (a, b) and (b, a)
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}

	return "pair:" + a + "|" + b
}

const roomsKey = "rooms"
