package ffi

import (
	"context"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// executor is the process-wide bridge between synchronous boundary calls and
// the asynchronous core. Worker goroutines drain a shared task queue; a
// boundary call submits its work and blocks until that work completes. The
// executor is created once on first use and lives for the process.
type executor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tasks   chan task
	spawned sync.WaitGroup
}

type task struct {
	fn   func(ctx context.Context) error
	done chan error
}

var (
	executorOnce sync.Once
	sharedExec   *executor
)

// sharedExecutor returns the process-wide executor, starting its workers on
// first use.
func sharedExecutor() *executor {
	executorOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		sharedExec = &executor{
			ctx:    ctx,
			cancel: cancel,
			tasks:  make(chan task),
		}
		workers := runtime.NumCPU()
		if workers < 2 {
			workers = 2
		}
		for i := 0; i < workers; i++ {
			go sharedExec.worker(i)
		}
		logrus.WithFields(logrus.Fields{
			"function": "sharedExecutor",
			"workers":  workers,
		}).Debug("started boundary executor")
	})
	return sharedExec
}

func (e *executor) worker(id int) {
	for t := range e.tasks {
		t.done <- e.run(t.fn)
	}
}

// run executes fn with panic containment. A panic is logged and surfaces as a
// fatal error instead of unwinding into the caller.
func (e *executor) run(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "executor.run",
				"panic":    r,
			}).Error("recovered panic in submitted work")
			err = &fatalError{value: r}
		}
	}()
	return fn(e.ctx)
}

// blockOn submits fn to the executor and waits for its result. The calling
// thread is parked for the duration; the work itself runs on an executor
// worker.
func (e *executor) blockOn(fn func(ctx context.Context) error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case e.tasks <- t:
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
	return <-t.done
}

// spawn starts a long-lived goroutine tied to the executor lifetime, outside
// the worker pool so it cannot starve queued tasks. Panics are contained and
// logged.
func (e *executor) spawn(fn func(ctx context.Context)) {
	e.spawned.Add(1)
	go func() {
		defer e.spawned.Done()
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"function": "executor.spawn",
					"panic":    r,
				}).Error("recovered panic in background goroutine")
			}
		}()
		fn(e.ctx)
	}()
}

// guardAsync validates nothing itself; it routes fn through the executor and
// maps the result to a status code on the calling thread.
func guardAsync(fn func(ctx context.Context) error) int32 {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return statusOf(sharedExecutor().blockOn(fn))
}
