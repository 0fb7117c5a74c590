package vulkan

import "golang.org/x/sys/windows"

// CurrentThread returns the id of the OS thread running the caller.
func CurrentThread() uint64 {
	return uint64(windows.GetCurrentThreadId())
}
