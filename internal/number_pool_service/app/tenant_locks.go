package app

import "sync"

// TenantLocks hands out one mutex per tenant id. Entries are dropped once no goroutine holds
// or waits for them, so the map stays proportional to in-flight tenants.
type TenantLocks struct {
	mu    sync.Mutex
	locks map[int64]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: make(map[int64]*tenantLock)}
}

// Lock blocks until the tenant's mutex is held and returns the matching unlock func.
func (l *TenantLocks) Lock(tenantID int64) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[tenantID]
	if !ok {
		entry = &tenantLock{}
		l.locks[tenantID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, tenantID)
		}
		l.mu.Unlock()
	}
}

func (l *TenantLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
