package vulkantest

import (
	"slices"
	"sync"

	"frame-engine/vulkan"
)

// Surface is a vulkan.SurfaceProvider whose size is set by the test.
type Surface struct {
	mu        sync.Mutex
	handle    vulkan.Surface
	extent    vulkan.Extent2D
	callbacks []func(vulkan.Extent2D)
}

func NewSurface(width, height uint32) *Surface {
	return &Surface{handle: 1, extent: vulkan.Extent2D{Width: width, Height: height}}
}

func (s *Surface) Surface() vulkan.Surface { return s.handle }

func (s *Surface) DrawableExtent() vulkan.Extent2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func (s *Surface) OnResize(fn func(vulkan.Extent2D)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Resize changes the drawable extent and runs the resize callbacks.
func (s *Surface) Resize(e vulkan.Extent2D) {
	s.mu.Lock()
	s.extent = e
	cbs := slices.Clone(s.callbacks)
	s.mu.Unlock()
	for _, fn := range cbs {
		fn(e)
	}
}
