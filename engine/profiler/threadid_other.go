//go:build !linux && !windows

package profiler

import (
	"bytes"
	"runtime"
	"strconv"
)

// No portable OS thread id here; fall back to the goroutine id, which is
// stable for a goroutine locked to its thread.
func currentThreadID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
