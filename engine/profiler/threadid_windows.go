//go:build windows

package profiler

import "golang.org/x/sys/windows"

func currentThreadID() uint64 { return uint64(windows.GetCurrentThreadId()) }
