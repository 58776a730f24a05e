// Package lane provides per-key serialized execution over shared compute.
//
// Each key gets an independent sequential lane: tasks submitted for one key
// run in submission order, never interleaved; tasks for distinct keys run
// in parallel. Lanes are created lazily on first submission and reclaimed
// after an idle timeout.
package lane

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toran-bot/engage/pkg/logger"
	"github.com/toran-bot/engage/pkg/metrics"
)

// ErrQueueFull is returned when a lane's queue is at capacity.
var ErrQueueFull = errors.New("lane queue full")

// ErrClosed is returned when the manager has been shut down.
var ErrClosed = errors.New("lane manager closed")

// Task is a unit of work executed inside a lane.
type Task func(ctx context.Context)

// Manager owns the lanes.
type Manager struct {
	idleTimeout time.Duration
	queueSize   int
	logger      *logger.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

type lane struct {
	key   string
	tasks chan Task
}

// NewManager creates a lane manager.
func NewManager(idleTimeout time.Duration, queueSize int, log *logger.Logger) *Manager {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Manager{
		idleTimeout: idleTimeout,
		queueSize:   queueSize,
		logger:      log,
		lanes:       make(map[string]*lane),
	}
}

// Submit enqueues a task on the key's lane, creating the lane if needed.
// Tasks for the same key execute in submission order.
func (m *Manager) Submit(ctx context.Context, key string, task Task) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	ln, ok := m.lanes[key]
	if !ok {
		ln = &lane{key: key, tasks: make(chan Task, m.queueSize)}
		m.lanes[key] = ln
		m.wg.Add(1)
		go m.run(ln)
		metrics.LanesActive.Inc()
		m.logger.Debug("lane created", zap.String("key", key))
	}

	// Enqueue while holding the manager lock so a draining lane cannot
	// retire between the lookup and the send.
	select {
	case ln.tasks <- task:
		m.mu.Unlock()
		return nil
	default:
		m.mu.Unlock()
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for in-flight tasks to finish.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, ln := range m.lanes {
		close(ln.tasks)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of live lanes. Diagnostics only.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lanes)
}

func (m *Manager) run(ln *lane) {
	defer m.wg.Done()
	defer metrics.LanesActive.Dec()

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case task, ok := <-ln.tasks:
			if !ok {
				return
			}
			task(context.Background())
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.idleTimeout)

		case <-idle.C:
			if m.retire(ln) {
				return
			}
			idle.Reset(m.idleTimeout)
		}
	}
}

// retire removes an idle lane unless a task raced in. Returns true when
// the lane goroutine should exit.
func (m *Manager) retire(ln *lane) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		// Close already owns teardown; keep draining until the channel
		// closes.
		return false
	}
	if len(ln.tasks) > 0 {
		return false
	}
	delete(m.lanes, ln.key)
	m.logger.Debug("idle lane reclaimed", zap.String("key", ln.key))
	return true
}
