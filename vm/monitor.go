package vm

import (
	"sync"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Monitor: re-entrant lock backing monitorenter/monitorexit
// ---------------------------------------------------------------------------

// Monitor is the lock associated with a heap value. The owning interpreter
// may enter it repeatedly; other interpreters block until the entry count
// drops back to zero.
type Monitor struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uuid.UUID
	count int
}

// NewMonitor returns an unowned monitor.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enter acquires the monitor for owner, blocking while another owner holds
// it.
func (m *Monitor) Enter(owner uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.count > 0 && m.owner != owner {
		m.cond.Wait()
	}
	m.owner = owner
	m.count++
}

// TryEnter acquires the monitor without blocking.
func (m *Monitor) TryEnter(owner uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count > 0 && m.owner != owner {
		return false
	}
	m.owner = owner
	m.count++
	return true
}

// Exit releases one level of ownership.
func (m *Monitor) Exit(owner uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 || m.owner != owner {
		return ErrIllegalMonitorState
	}
	m.count--
	if m.count == 0 {
		m.owner = uuid.Nil
		m.cond.Signal()
	}
	return nil
}

// Owner reports the current owner and entry count.
func (m *Monitor) Owner() (uuid.UUID, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.count
}
