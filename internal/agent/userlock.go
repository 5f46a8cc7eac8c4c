package agent

import (
	"sync"

	"github.com/fitstack/coach/internal/identity"
)

// userLocks serializes turns per user hash. Different users never
// contend; two turns from the same user queue behind each other so
// short-term memory writes stay ordered.
type userLocks struct {
	mu    sync.Mutex
	locks map[identity.UserHash]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[identity.UserHash]*userLock)}
}

// acquire blocks until the user's lock is held and returns the
// release function. Entries are reclaimed when no turn holds or
// waits on them.
func (u *userLocks) acquire(user identity.UserHash) func() {
	u.mu.Lock()
	l, ok := u.locks[user]
	if !ok {
		l = &userLock{}
		u.locks[user] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, user)
		}
		u.mu.Unlock()
	}
}
