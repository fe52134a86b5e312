package ffi

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Status codes returned by every fallible boundary function.
const (
	// StatusOK indicates the operation completed.
	StatusOK int32 = 0
	// StatusFailure indicates the wrapped operation failed. The error
	// channel for the calling thread holds the message.
	StatusFailure int32 = -1
	// StatusFatal indicates a panic inside submitted work was caught at
	// the boundary instead of crossing it.
	StatusFatal int32 = -2
	// StatusInvalid indicates malformed input (null or unknown handle, bad
	// argument) rejected before any work was submitted.
	StatusInvalid int32 = -3
)

// lastErrors maps an OS thread ID to the most recent error message recorded
// on that thread. Entries are overwritten by the next failing call on the
// same thread and never removed on success: a message is only meaningful
// right after a non-success status, and leaving stale entries in place keeps
// the success path free of map traffic. The map stays bounded by the number
// of threads that ever cross the boundary.
var lastErrors sync.Map

// setLastError records msg for the calling OS thread.
func setLastError(msg string) {
	lastErrors.Store(currentThreadID(), msg)
}

// LastErrorMessage returns the message recorded by the most recent failing
// call on the calling OS thread. The message persists across succeeding
// calls; it is only meaningful immediately after a non-success status.
func LastErrorMessage() string {
	if v, ok := lastErrors.Load(currentThreadID()); ok {
		return v.(string)
	}
	return ""
}

// LastErrorLength returns the length in bytes of the message LastErrorMessage
// would return, so a C caller can size its buffer before copying.
func LastErrorLength() int32 {
	return int32(len(LastErrorMessage()))
}

// invalidError marks input rejected before any work was submitted.
type invalidError struct {
	msg string
}

func (e *invalidError) Error() string { return e.msg }

// invalidf builds an input-validation error mapped to StatusInvalid.
func invalidf(format string, args ...interface{}) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

// fatalError wraps a panic value recovered at the boundary.
type fatalError struct {
	value interface{}
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("panic in boundary call: %v", e.value)
}

// statusOf maps an error to its boundary status code and records the message
// on the calling thread. A nil error returns StatusOK without touching the
// channel, so a stale message from an earlier failure stays readable.
func statusOf(err error) int32 {
	if err == nil {
		return StatusOK
	}
	setLastError(err.Error())
	switch err.(type) {
	case *invalidError:
		return StatusInvalid
	case *fatalError:
		return StatusFatal
	default:
		return StatusFailure
	}
}

// guard pins the calling goroutine to its OS thread for the duration of fn so
// that the error channel entry lands on the thread the caller will read it
// from, recovers panics escaping fn, and maps the outcome to a status code.
func guard(fn func() error) int32 {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{
					"function": "guard",
					"panic":    r,
				}).Error("recovered panic at boundary")
				err = &fatalError{value: r}
			}
		}()
		return fn()
	}()
	return statusOf(err)
}
