package job

import (
	"context"
	"fmt"
	"sync"
)

// Manager is the release cursor of a stage. Workers park until the cursor
// reaches their job's priority, so output leaves a stage in priority order.
// Priorities released to Next must be contiguous from the start value; a
// missing priority parks every later waiter until ctx ends.
type Manager struct {
	mu           sync.Mutex
	value        int
	end          int
	endInclusive bool
	changed      chan struct{}
	done         chan struct{}
	doneClosed   bool
}

// NewManager creates a cursor at start that finishes after end (or at end
// when endInclusive is false).
func NewManager(start, end int, endInclusive bool) *Manager {
	m := &Manager{
		value:        start,
		end:          end,
		endInclusive: endInclusive,
		changed:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	if m.finishedLocked() {
		m.closeDoneLocked()
	}
	return m
}

// Value returns the current cursor.
func (m *Manager) Value() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// End returns the last priority of the stage.
func (m *Manager) End() int {
	return m.end
}

// IsFinished reports whether the cursor moved past the end.
func (m *Manager) IsFinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finishedLocked()
}

// Next advances the cursor by one.
func (m *Manager) Next() {
	m.Advance(1)
}

// Advance moves the cursor forward by n. No-op once finished.
func (m *Manager) Advance(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishedLocked() {
		return
	}
	m.value += n
	m.broadcastLocked()
}

// Set jumps the cursor to n. No-op once finished or when n would move the
// cursor backwards.
func (m *Manager) Set(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishedLocked() || n <= m.value {
		return
	}
	m.value = n
	m.broadcastLocked()
}

// Done is closed once the cursor finishes.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Changed returns a channel closed by the next cursor change. Capture it
// before reading Value to observe every change.
func (m *Manager) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// AwaitNext blocks until the cursor changes.
func (m *Manager) AwaitNext(ctx context.Context) error {
	m.mu.Lock()
	ch := m.changed
	m.mu.Unlock()
	select {
	case <-ctx.Done():
		return fmt.Errorf("await next canceled: %w", ctx.Err())
	case <-ch:
		return nil
	}
}

// AwaitTurn blocks until the cursor reaches priority or finishes. Every
// advance wakes all waiters and each re-checks its own priority.
func (m *Manager) AwaitTurn(ctx context.Context, priority int) error {
	for {
		m.mu.Lock()
		if m.value >= priority || m.finishedLocked() {
			m.mu.Unlock()
			return nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("await turn %d canceled: %w", priority, ctx.Err())
		case <-ch:
		}
	}
}

// AwaitFinished blocks until the cursor finishes; returns at once if it has.
func (m *Manager) AwaitFinished(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("await finished canceled: %w", ctx.Err())
	case <-m.done:
		return nil
	}
}

func (m *Manager) finishedLocked() bool {
	if m.endInclusive {
		return m.value > m.end
	}
	return m.value >= m.end
}

func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
	if m.finishedLocked() {
		m.closeDoneLocked()
	}
}

func (m *Manager) closeDoneLocked() {
	if !m.doneClosed {
		close(m.done)
		m.doneClosed = true
	}
}
