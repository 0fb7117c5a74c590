package vulkan

import "golang.org/x/sys/unix"

// CurrentThread returns the id of the OS thread running the caller.
func CurrentThread() uint64 {
	return uint64(unix.Gettid())
}
