//go:build linux
// +build linux

package ffi

import "golang.org/x/sys/unix"

// currentThreadID returns the kernel thread ID of the calling OS thread.
func currentThreadID() uint64 {
	return uint64(unix.Gettid())
}
