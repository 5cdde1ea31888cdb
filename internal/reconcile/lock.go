package reconcile

import "sync"

// Lock serialises sessions per table within one process. It does not coordinate
// between processes; deployments running several importers must serialise uploads
// externally.
type Lock struct {
	mu     sync.Mutex
	active map[Table]struct{}
}

// NewLock constructs an empty lock set.
func NewLock() *Lock {
	return &Lock{active: make(map[Table]struct{})}
}

// TryAcquire claims table and returns its release function, or ErrSessionActive.
func (l *Lock) TryAcquire(table Table) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.active[table]; busy {
		return nil, ErrSessionActive
	}
	l.active[table] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, table)
			l.mu.Unlock()
		})
	}, nil
}
