package vm

import (
	"sync"

	"github.com/petermattis/goid"
)

// Monitor is a re-entrant lock owned by a goroutine.
type Monitor struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
	count int
}

func newMonitor() *Monitor {
	m := &Monitor{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enter blocks until the calling goroutine owns the monitor.
func (m *Monitor) Enter() {
	g := goid.Get()
	m.mu.Lock()
	for m.count > 0 && m.owner != g {
		m.cond.Wait()
	}
	m.owner = g
	m.count++
	m.mu.Unlock()
}

// Exit releases one level of ownership.
func (m *Monitor) Exit() error {
	g := goid.Get()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 || m.owner != g {
		return ErrNotOwner
	}
	m.count--
	if m.count == 0 {
		m.owner = 0
		m.cond.Signal()
	}
	return nil
}

// Locked reports whether any goroutine holds the monitor.
func (m *Monitor) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count > 0
}

// MonitorTable maps references to monitors. Monitors are created on first
// use and never evicted.
type MonitorTable struct {
	mu       sync.Mutex
	monitors map[any]*Monitor
}

func NewMonitorTable() *MonitorTable {
	return &MonitorTable{monitors: make(map[any]*Monitor)}
}

// Get returns the monitor for ref, creating it if needed.
func (t *MonitorTable) Get(ref any) *Monitor {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.monitors[ref]
	if !ok {
		m = newMonitor()
		t.monitors[ref] = m
	}
	return m
}

func (t *MonitorTable) Enter(ref any) {
	t.Get(ref).Enter()
}

func (t *MonitorTable) Exit(ref any) error {
	t.mu.Lock()
	m, ok := t.monitors[ref]
	t.mu.Unlock()
	if !ok {
		return ErrNotOwner
	}
	return m.Exit()
}

func (t *MonitorTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.monitors)
}
