//go:build windows
// +build windows

package ffi

import "golang.org/x/sys/windows"

// currentThreadID returns the thread ID of the calling OS thread.
func currentThreadID() uint64 {
	return uint64(windows.GetCurrentThreadId())
}
