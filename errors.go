package xmtpcore

import (
	"fmt"
	"runtime"

	"github.com/opd-ai/xmtpcore/ffi"
)

// Category classifies a boundary failure.
type Category int

const (
	// CategoryOperational is a failed operation: backend rejection, bad
	// state, I/O trouble.
	CategoryOperational Category = iota
	// CategoryValidation is malformed input rejected before any work ran,
	// including use of a closed object.
	CategoryValidation
	// CategoryFatal is a panic caught at the boundary.
	CategoryFatal
)

func (c Category) String() string {
	switch c {
	case CategoryOperational:
		return "operational"
	case CategoryValidation:
		return "validation"
	case CategoryFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a boundary failure with its classification.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// pinThread pins the goroutine to its OS thread so the error channel entry a
// boundary call writes is the one read back afterwards; without the pin the
// goroutine could migrate between the call and the read. Use as
// defer pinThread()() ahead of the boundary call.
func pinThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

// errClosed builds the validation error for use-after-close.
func errClosed(what string) *Error {
	return &Error{Category: CategoryValidation, Message: what + " is closed"}
}

// statusError converts a boundary status into a typed error, pulling the
// message from the calling thread's error channel. Returns nil for success.
func statusError(st int32) error {
	if st == ffi.StatusOK {
		return nil
	}
	e := &Error{Message: ffi.LastErrorMessage()}
	switch st {
	case ffi.StatusInvalid:
		e.Category = CategoryValidation
	case ffi.StatusFatal:
		e.Category = CategoryFatal
	default:
		e.Category = CategoryOperational
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("boundary call failed with status %d", st)
	}
	return e
}

// lastError builds a typed error from the error channel after a sentinel
// return from an accessor.
func lastError(category Category, fallback string) error {
	msg := ffi.LastErrorMessage()
	if msg == "" {
		msg = fallback
	}
	return &Error{Category: category, Message: msg}
}
