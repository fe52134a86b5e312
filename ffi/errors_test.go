package ffi

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int32
	}{
		{"nil maps to ok", nil, StatusOK},
		{"plain error maps to failure", errors.New("boom"), StatusFailure},
		{"invalid input maps to invalid", invalidf("bad %s", "arg"), StatusInvalid},
		{"fatal maps to fatal", &fatalError{value: "panic value"}, StatusFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestErrorChannelHoldsMessageUntilNextFailure(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	st := guard(func() error {
		return errors.New("first failure")
	})
	require.Equal(t, StatusFailure, st)
	assert.Equal(t, "first failure", LastErrorMessage())
	assert.Equal(t, int32(len("first failure")), LastErrorLength())

	// A succeeding call leaves the stale message in place; only the status
	// code says whether the message is current.
	st = guard(func() error { return nil })
	require.Equal(t, StatusOK, st)
	assert.Equal(t, "first failure", LastErrorMessage())

	// The next failing call overwrites it.
	st = guard(func() error {
		return errors.New("second failure")
	})
	require.Equal(t, StatusFailure, st)
	assert.Equal(t, "second failure", LastErrorMessage())
}

func TestErrorChannelIsPerThread(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	st := guard(func() error {
		return errors.New("main goroutine failure")
	})
	require.Equal(t, StatusFailure, st)

	// A failure on another OS thread must not disturb this thread's entry.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		guard(func() error {
			return errors.New("other goroutine failure")
		})
	}()
	wg.Wait()

	assert.Equal(t, "main goroutine failure", LastErrorMessage())
}

func TestGuardRecoversPanic(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	st := guard(func() error {
		panic("deliberate")
	})
	require.Equal(t, StatusFatal, st)
	assert.Contains(t, LastErrorMessage(), "deliberate")
}

func TestGuardAsyncRecoversPanicInSubmittedWork(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	st := guardAsync(func(ctx context.Context) error {
		panic("worker panic")
	})
	require.Equal(t, StatusFatal, st)
	assert.Contains(t, LastErrorMessage(), "worker panic")

	// The executor must survive the panic and keep serving work.
	st = guardAsync(func(ctx context.Context) error { return nil })
	assert.Equal(t, StatusOK, st)
}
