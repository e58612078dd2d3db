// Package backpressure bounds how many search pipelines run at once.
//
// Callers over the ceiling wait in a FIFO queue. A released slot is handed
// directly to the oldest waiter, so no caller ever polls.
package backpressure

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"food-search-be/pkg/failure"
)

var (
	// ErrQueueTimeout is returned when a caller waited longer than MaxQueueWait.
	ErrQueueTimeout = fmt.Errorf("backpressure: %w", failure.ErrQueueTimeout)
	// ErrShuttingDown is returned for calls made (or still queued) after Shutdown.
	ErrShuttingDown = errors.New("backpressure: manager is shutting down")
)

const (
	DefaultMaxConcurrent = 8
	DefaultMaxQueueWait  = 5 * time.Second
)

// Config is the admission configuration.
type Config struct {
	MaxConcurrent int
	MaxQueueWait  time.Duration
}

// Observer receives admission events. Implementations must be cheap and non-blocking.
type Observer interface {
	Admitted(queued time.Duration)
	Rejected(reason string)
	Active(active, capacity int)
}

type nopObserver struct{}

func (nopObserver) Admitted(time.Duration) {}
func (nopObserver) Rejected(string)        {}
func (nopObserver) Active(int, int)        {}

// Stats is a point-in-time snapshot of the manager's counters.
type Stats struct {
	TotalRequests  uint64        `json:"totalRequests"`
	TotalQueueWait time.Duration `json:"totalQueueWaitNs"`
	Rejected       uint64        `json:"rejected"`
	PeakConcurrent int           `json:"peakConcurrent"`
	Active         int           `json:"active"`
	Queued         int           `json:"queued"`
	Capacity       int           `json:"capacity"`
	Utilization    float64       `json:"utilization"`
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// Manager admits at most MaxConcurrent units of work at a time.
type Manager struct {
	cfg      Config
	observer Observer

	mu       sync.Mutex
	active   int
	waiters  *list.List
	shutdown bool

	totalRequests  uint64
	totalQueueWait time.Duration
	rejected       uint64
	peak           int
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver attaches an admission observer, e.g. Prometheus collectors.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager builds a Manager. Non-positive settings fall back to defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxQueueWait <= 0 {
		cfg.MaxQueueWait = DefaultMaxQueueWait
	}
	m := &Manager{
		cfg:      cfg,
		observer: nopObserver{},
		waiters:  list.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Execute runs fn once a slot is available. The slot is released on every
// exit path of fn, including panics. Errors from fn are returned unchanged.
func (m *Manager) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	return fn(ctx)
}

// Do is Execute for units of work that produce a value.
func Do[T any](ctx context.Context, m *Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (m *Manager) acquire(ctx context.Context) error {
	start := time.Now()

	m.mu.Lock()
	if m.shutdown {
		m.rejected++
		m.mu.Unlock()
		m.observer.Rejected("shutdown")
		return ErrShuttingDown
	}
	m.totalRequests++
	if m.active < m.cfg.MaxConcurrent && m.waiters.Len() == 0 {
		m.admitLocked(0, false)
		m.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	elem := m.waiters.PushBack(w)
	m.mu.Unlock()

	timer := time.NewTimer(m.cfg.MaxQueueWait)
	defer timer.Stop()

	var cause error
	select {
	case <-w.ready:
	case <-timer.C:
		cause = ErrQueueTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w.granted {
		// Either woken normally or the slot arrived in the same instant the
		// timer fired. The slot is ours; release() already kept it counted.
		if cause != nil && !errors.Is(cause, ErrQueueTimeout) {
			m.active--
			m.handOffLocked()
			return cause
		}
		m.admitLocked(time.Since(start), true)
		return nil
	}

	m.waiters.Remove(elem)
	m.rejected++
	m.totalQueueWait += time.Since(start)
	if m.shutdown {
		m.observer.Rejected("shutdown")
		return ErrShuttingDown
	}
	if errors.Is(cause, ErrQueueTimeout) {
		m.observer.Rejected("queue_timeout")
	} else {
		m.observer.Rejected("cancelled")
	}
	return cause
}

// admitLocked records an admission. For handed-off slots active was already
// incremented by release.
func (m *Manager) admitLocked(queued time.Duration, handedOff bool) {
	if !handedOff {
		m.active++
	}
	m.totalQueueWait += queued
	if m.active > m.peak {
		m.peak = m.active
	}
	m.observer.Admitted(queued)
	m.observer.Active(m.active, m.cfg.MaxConcurrent)
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	m.handOffLocked()
	m.observer.Active(m.active, m.cfg.MaxConcurrent)
}

// handOffLocked gives a free slot to the oldest waiter, keeping it counted as active.
func (m *Manager) handOffLocked() {
	if m.shutdown || m.active >= m.cfg.MaxConcurrent {
		return
	}
	front := m.waiters.Front()
	if front == nil {
		return
	}
	w := m.waiters.Remove(front).(*waiter)
	w.granted = true
	m.active++
	close(w.ready)
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalRequests:  m.totalRequests,
		TotalQueueWait: m.totalQueueWait,
		Rejected:       m.rejected,
		PeakConcurrent: m.peak,
		Active:         m.active,
		Queued:         m.waiters.Len(),
		Capacity:       m.cfg.MaxConcurrent,
		Utilization:    float64(m.active) / float64(m.cfg.MaxConcurrent),
	}
}

// Shutdown rejects every queued caller and all future calls. Units already
// running are left to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	m.shutdown = true
	for e := m.waiters.Front(); e != nil; e = e.Next() {
		close(e.Value.(*waiter).ready)
	}
}
