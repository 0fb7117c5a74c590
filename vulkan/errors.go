package vulkan

import (
	"fmt"

	"github.com/pkg/errors"
)

// Result mirrors VkResult.
type Result int32

const (
	Success                   Result = 0
	NotReady                  Result = 1
	Timeout                   Result = 2
	Suboptimal                Result = 1000001003
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorSurfaceLost          Result = -1000000000
	ErrorOutOfDate            Result = -1000001004
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotReady:
		return "not ready"
	case Timeout:
		return "timeout"
	case Suboptimal:
		return "suboptimal"
	case ErrorOutOfHostMemory:
		return "out of host memory"
	case ErrorOutOfDeviceMemory:
		return "out of device memory"
	case ErrorInitializationFailed:
		return "initialization failed"
	case ErrorDeviceLost:
		return "device lost"
	case ErrorSurfaceLost:
		return "surface lost"
	case ErrorOutOfDate:
		return "out of date"
	}
	return fmt.Sprintf("result %d", int32(r))
}

var (
	ErrTimeout        = errors.New("vulkan: timeout")
	ErrOutOfDate      = errors.New("vulkan: swapchain out of date")
	ErrDeviceLost     = errors.New("vulkan: device lost")
	ErrNotInitialized = errors.New("vulkan: not initialized")
	ErrDegradedGroup  = errors.New("vulkan: sync group has null elements")
)

// ResultError is a failed native call.
type ResultError struct {
	Op   string
	Code Result
}

func NewResultError(op string, code Result) error {
	return &ResultError{Op: op, Code: code}
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("vulkan: %s failed: %s", e.Op, e.Code)
}

// Is lets errors.Is match a ResultError against the package sentinels.
func (e *ResultError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Code == Timeout
	case ErrOutOfDate:
		return e.Code == ErrorOutOfDate
	case ErrDeviceLost:
		return e.Code == ErrorDeviceLost
	}
	return false
}

// ResultOf returns the native result carried by err, Success for nil and
// ErrorInitializationFailed for errors that did not come from a device.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	var re *ResultError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrorInitializationFailed
}
