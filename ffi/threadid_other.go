//go:build !linux && !windows
// +build !linux,!windows

package ffi

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the goroutine ID on platforms without a cheap
// thread ID syscall. Boundary calls pin their goroutine to its OS thread, so
// the ID is stable for the duration of a call and its follow-up error read.
func currentThreadID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	// First line is "goroutine N [running]:".
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
