package audit

import (
	"context"
	"sync"
	"time"

	"github.com/caregrid/caregrid/pkg/async"
)

// MultiLogger fans out audit events to multiple loggers. In async mode
// each destination is written from a supervised goroutine so one slow
// sink cannot stall the request path.
type MultiLogger struct {
	loggers []Logger
	async   bool
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewMultiLogger creates a multi-logger writing to all given destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		timeout: 5 * time.Second,
	}
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 0 {
		return nil
	}
	if m.async {
		// Detach from the request context so writes survive request end.
		for _, logger := range m.loggers {
			logger := logger
			m.wg.Add(1)
			async.SafeGo(context.Background(), m.timeout, "audit fan-out", func(ctx context.Context) error {
				defer m.wg.Done()
				return logger.Log(ctx, event)
			})
		}
		return nil
	}

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait blocks until all in-flight async writes complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Close waits for in-flight async writes, then closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
