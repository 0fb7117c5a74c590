//go:build !linux && !windows

package vulkan

import (
	"bytes"
	"runtime"
	"strconv"
)

// CurrentThread returns the id of the calling goroutine. Platforms without
// a thread id syscall in x/sys fall back to it; a goroutine pinned with
// runtime.LockOSThread maps one to one onto its thread.
func CurrentThread() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
