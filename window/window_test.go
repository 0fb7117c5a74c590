package window

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"frame-engine/vulkan"
)

func TestResizeCallbacks(t *testing.T) {
	w := &Window{extent: vulkan.Extent2D{Width: 800, Height: 600}}

	var got []vulkan.Extent2D
	w.OnResize(func(e vulkan.Extent2D) { got = append(got, e) })
	w.OnResize(func(e vulkan.Extent2D) {
		// Callbacks may query the window without deadlocking.
		assert.Equal(t, e, w.DrawableExtent())
	})

	w.resized(vulkan.Extent2D{Width: 1024, Height: 768})
	w.resized(vulkan.Extent2D{Width: 0, Height: 0})
	w.resized(vulkan.Extent2D{Width: 640, Height: 480})

	assert.Equal(t, []vulkan.Extent2D{{Width: 1024, Height: 768}, {Width: 640, Height: 480}}, got)
	assert.Equal(t, vulkan.Extent2D{Width: 640, Height: 480}, w.DrawableExtent())
}

func TestMinimizedExtentIsRecorded(t *testing.T) {
	w := &Window{}
	w.resized(vulkan.Extent2D{})
	assert.Equal(t, vulkan.Extent2D{}, w.DrawableExtent())
}

func TestSurface(t *testing.T) {
	w := &Window{}
	assert.Equal(t, vulkan.Surface(0), w.Surface())
	w.SetSurface(7)
	assert.Equal(t, vulkan.Surface(7), w.Surface())
}
