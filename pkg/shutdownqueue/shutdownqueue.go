// Package shutdownqueue provides a LIFO queue of cleanup tasks.
//
// Register tasks as resources are acquired and drain the queue at the end
// of main:
//
//	q := shutdownqueue.New()
//	defer func() {
//		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//		defer cancel()
//		_ = q.Shutdown(ctx)
//	}()
//
// Tasks run once, in reverse order of registration. Panics are recovered.
// Shutdown is idempotent and returns an aggregated error via errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish (or ctx is canceled).
type Task func(ctx context.Context) error

type entry struct {
	name string
	task Task
}

type Queue struct {
	mu     sync.Mutex
	tasks  []entry
	closed bool
}

func New() *Queue {
	return &Queue{tasks: make([]entry, 0, 8)}
}

// Add registers a named task to be run on Shutdown, in LIFO order.
// If t is nil or shutdown has already started, Add does nothing.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.tasks = append(q.tasks, entry{name: name, task: t})
}

// AddCloser registers c.Close as a task.
func (q *Queue) AddCloser(name string, c interface{ Close() error }) {
	q.Add(name, func(context.Context) error {
		return c.Close()
	})
}

// Shutdown drains all registered tasks in LIFO order. Subsequent calls are
// no-ops.
//
// If ctx is canceled or times out mid-drain, Shutdown stops early and returns
// the context error joined with any task errors so far.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	tasks := q.tasks
	q.tasks = nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled: %w", ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		err := run(ctx, tasks[i])
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func run(ctx context.Context, e entry) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("panic in shutdown task %s: %v", e.name, r)
		}
	}()

	slog.InfoContext(ctx, "shutting down", "task", e.name)

	err = e.task(ctx)
	if err != nil {
		return fmt.Errorf("shutdown %s: %w", e.name, err)
	}

	return nil
}
