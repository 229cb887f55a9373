package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/caregrid/caregrid/pkg/observability"
)

var (
	loggerMu sync.RWMutex
	logger   = observability.NewLogger(observability.InfoLevel, nil)
)

// SetLogger replaces the package logger used for panics and dropped errors
func SetLogger(l *observability.Logger) {
	if l == nil {
		return
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

func pkgLogger() *observability.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SafeGo executes a function in a goroutine with panic recovery, a timeout,
// and error logging. Use this instead of bare `go func()` for fire-and-forget
// work such as audit fan-out, so a panicking sink cannot crash the process.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				pkgLogger().WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			pkgLogger().WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for functions that cannot fail
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// WorkerPool runs tasks on a fixed set of workers with per-task timeouts,
// panic isolation, and a bounded error channel.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewWorkerPool starts workers workers processing submitted tasks under
// taskName. Each task gets its own timeout-bounded context.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task. It fails once the pool has shut down.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	select {
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	default:
	}

	// Shutdown can close workCh between the check above and the send below.
	defer func() {
		recover()
	}()

	select {
	case p.workCh <- fn:
		return nil
	case <-p.doneCh:
		return fmt.Errorf("worker pool shut down")
	}
}

// Shutdown stops accepting work and waits up to timeout for in-flight tasks
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		// Batch may already have closed the channel.
		func() {
			defer func() { recover() }()
			close(p.workCh)
		}()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = fmt.Errorf("worker pool shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

// Errors returns the channel carrying task errors. Reads are non-blocking
// by convention; the channel is bounded and overflow is logged.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	defer func() {
		if r := recover(); r != nil {
			pkgLogger().WithFields(map[string]interface{}{
				"task":   p.taskName,
				"worker": id,
				"panic":  r,
				"stack":  string(debug.Stack()),
			}).Error("Panic in worker")
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(p.ctx, p.timeout)

			func() {
				defer cancel()
				defer func() {
					if r := recover(); r != nil {
						p.reportError(fmt.Errorf("panic: %v", r))
					}
				}()

				if err := fn(ctx); err != nil {
					p.reportError(err)
				}
			}()
		}
	}
}

func (p *WorkerPool) reportError(err error) {
	select {
	case p.errCh <- err:
	default:
		pkgLogger().WithError(err).WithField("task", p.taskName).Warn("Error channel full, dropping error")
	}
}

// Batch runs fn over items on a temporary worker pool and returns every
// error encountered. Used by the legacy-role migration to fan out per-user
// work.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	pool := NewWorkerPool(ctx, workers, taskName, timeout)
	defer pool.Shutdown(5 * time.Second)

	for _, item := range items {
		item := item
		if err := pool.Submit(func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			return []error{err}
		}
	}

	// Closing the work channel lets workers drain queued tasks before the
	// done channel closes.
	close(pool.workCh)
	<-pool.doneCh
	pool.cancel()

	var errs []error
	for {
		select {
		case err := <-pool.errCh:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
