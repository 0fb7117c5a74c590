package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"frame-engine/renderer"
)

func CreateTriangle(prog renderer.ShaderProgram, camera *Camera) *Mesh {
	vertices := []Vertex{
		{Position: mgl32.Vec3{0, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}},
	}
	return NewMesh("Triangle", vertices, []uint32{0, 1, 2}, prog, camera)
}

// CreateCube builds a cube of the given edge length with one color per
// face.
func CreateCube(size float32, prog renderer.ShaderProgram, camera *Camera) *Mesh {
	s := size / 2
	faces := []struct {
		corners [4]mgl32.Vec3
		color   mgl32.Vec3
	}{
		// front, back, top, bottom, right, left
		{[4]mgl32.Vec3{{-s, -s, s}, {s, -s, s}, {s, s, s}, {-s, s, s}}, mgl32.Vec3{1, 0, 0}},
		{[4]mgl32.Vec3{{s, -s, -s}, {-s, -s, -s}, {-s, s, -s}, {s, s, -s}}, mgl32.Vec3{0, 1, 0}},
		{[4]mgl32.Vec3{{-s, s, s}, {s, s, s}, {s, s, -s}, {-s, s, -s}}, mgl32.Vec3{0, 0, 1}},
		{[4]mgl32.Vec3{{-s, -s, -s}, {s, -s, -s}, {s, -s, s}, {-s, -s, s}}, mgl32.Vec3{1, 1, 0}},
		{[4]mgl32.Vec3{{s, -s, s}, {s, -s, -s}, {s, s, -s}, {s, s, s}}, mgl32.Vec3{1, 0, 1}},
		{[4]mgl32.Vec3{{-s, -s, -s}, {-s, -s, s}, {-s, s, s}, {-s, s, -s}}, mgl32.Vec3{0, 1, 1}},
	}

	vertices := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range f.corners {
			vertices = append(vertices, Vertex{Position: c, Color: f.color})
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return NewMesh("Cube", vertices, indices, prog, camera)
}
