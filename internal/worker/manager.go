package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Worker is a long-running background process with an explicit lifecycle.
// Start must return once the worker is running; Stop blocks until in-flight
// work has drained.
type Worker interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Manager owns the lifecycle of the registered workers. Registration happens
// during wiring, before StartAll, and is not safe for concurrent use.
type Manager struct {
	workers []Worker
	logger  *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker. Order matters: workers start in registration order
// and stop in reverse.
func (m *Manager) Register(w Worker) {
	m.workers = append(m.workers, w)
}

// StartAll starts every registered worker. If one fails to start, the
// workers already running are stopped again before the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	for i, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Worker failed to start",
				zap.String("worker", w.Name()),
				zap.Error(err))
			m.stop(m.workers[:i])
			return fmt.Errorf("failed to start worker %s: %w", w.Name(), err)
		}
		m.logger.Info("Worker started", zap.String("worker", w.Name()))
	}
	return nil
}

// StopAll stops every worker in reverse registration order, so workers that
// feed others shut down after their consumers.
func (m *Manager) StopAll() {
	m.stop(m.workers)
}

func (m *Manager) stop(workers []Worker) {
	for i := len(workers) - 1; i >= 0; i-- {
		workers[i].Stop()
		m.logger.Info("Worker stopped", zap.String("worker", workers[i].Name()))
	}
}
