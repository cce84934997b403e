package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual clock. Callbacks only run when Advance or FireNext is called,
// on the calling goroutine. It backs the simulate command and engine tests.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	m     *Manual
	seq   int
	at    time.Time
	delay time.Duration
	f     func()
}

// NewManual starts a virtual clock at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc queues f to run once virtual time passes now+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, seq: m.seq, at: m.now.Add(d), delay: d, f: f}
	m.pending = append(m.pending, t)
	return t
}

// Stop removes the timer if it has not fired.
func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, p := range t.m.pending {
		if p == t {
			t.m.pending = append(t.m.pending[:i], t.m.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the requested delays of queued timers in due order.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sortLocked()
	out := make([]time.Duration, len(m.pending))
	for i, t := range m.pending {
		out[i] = t.delay
	}
	return out
}

// FireNext jumps to the earliest pending timer and runs it. It returns the timer's
// requested delay and false when nothing is pending.
func (m *Manual) FireNext() (time.Duration, bool) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return 0, false
	}
	m.sortLocked()
	t := m.pending[0]
	m.pending = m.pending[1:]
	if t.at.After(m.now) {
		m.now = t.at
	}
	m.mu.Unlock()

	t.f()
	return t.delay, true
}

// Advance moves virtual time forward by d, running every timer that falls due,
// including timers scheduled by callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		m.sortLocked()
		if len(m.pending) == 0 || m.pending[0].at.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		t := m.pending[0]
		m.pending = m.pending[1:]
		m.now = t.at
		m.mu.Unlock()

		t.f()
	}
}

func (m *Manual) sortLocked() {
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].at.Equal(m.pending[j].at) {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].at.Before(m.pending[j].at)
	})
}

var _ Clock = (*Manual)(nil)
