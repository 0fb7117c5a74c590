package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is the view-projection shared by the meshes of one shader
// program. It orbits its target by Orbit radians per frame; the first mesh
// that updates uniforms in a frame advances it.
type Camera struct {
	mu sync.Mutex

	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	FOV         float32
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	Orbit float32

	frames uint64
}

func NewCamera(fov, aspectRatio, nearPlane, farPlane float32) *Camera {
	return &Camera{
		Position:    mgl32.Vec3{3, 3, 3},
		Up:          mgl32.Vec3{0, 1, 0},
		FOV:         fov,
		AspectRatio: aspectRatio,
		NearPlane:   nearPlane,
		FarPlane:    farPlane,
	}
}

func (c *Camera) UpdateAspectRatio(width, height float32) {
	if height <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AspectRatio = width / height
}

func (c *Camera) LookAt(position, target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Position = position
	c.Target = target
}

// ViewProjection returns projection * view with the Y axis flipped for
// Vulkan clip space.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := mgl32.LookAtV(c.Position, c.Target, c.Up)
	proj := mgl32.Perspective(c.FOV, c.AspectRatio, c.NearPlane, c.FarPlane)
	proj[5] *= -1
	return proj.Mul4(view)
}

// Frames returns how many times the camera advanced.
func (c *Camera) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *Camera) advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	if c.Orbit == 0 {
		return
	}
	rot := mgl32.HomogRotate3D(c.Orbit, c.Up)
	offset := c.Position.Sub(c.Target)
	c.Position = c.Target.Add(rot.Mul4x1(offset.Vec4(0)).Vec3())
}
