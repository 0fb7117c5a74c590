// Package scene holds the drawables the demo renders: meshes with vertex
// and index buffers whose transform reaches the vertex shader as a push
// constant.
package scene

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"frame-engine/renderer"
	"frame-engine/vulkan"
)

var ErrNotUploaded = errors.New("scene: mesh not uploaded")

// Vertex is a position and a color, interleaved.
type Vertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

const vertexSize = 24

// VertexLayout describes Vertex to the pipeline.
var VertexLayout = vulkan.VertexLayout{
	Stride: vertexSize,
	Attributes: []vulkan.VertexAttribute{
		{Location: 0, Format: vulkan.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Format: vulkan.FormatR32G32B32Sfloat, Offset: 12},
	},
}

// PushConstantRange is the model-view-projection matrix read by the
// vertex stage.
var PushConstantRange = vulkan.PushConstantRange{
	Stages: vulkan.ShaderStageVertex,
	Size:   64,
}

// AABB is an axis-aligned bounding box in local space.
type AABB struct {
	Min, Max mgl32.Vec3
}

func (b AABB) Center() mgl32.Vec3 { return b.Min.Add(b.Max).Mul(0.5) }

// Mesh is a renderer.Drawable with CPU-side geometry and, after Upload,
// its device buffers.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32

	// Spin rotates the mesh around its local Y axis by this many radians
	// per frame.
	Spin float32

	prog   renderer.ShaderProgram
	camera *Camera
	bounds AABB

	mu       sync.Mutex
	dev      vulkan.ResourceDevice
	vertices vulkan.Buffer
	indices  vulkan.Buffer
	pipeline vulkan.Pipeline
	model    mgl32.Mat4
	push     map[int][]byte
}

// NewMesh builds a mesh drawn with prog and viewed through camera.
func NewMesh(name string, vertices []Vertex, indices []uint32, prog renderer.ShaderProgram, camera *Camera) *Mesh {
	m := &Mesh{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
		prog:     prog,
		camera:   camera,
		model:    mgl32.Ident4(),
		push:     make(map[int][]byte),
	}
	if len(vertices) > 0 {
		m.bounds = computeLocalAABB(vertices)
	}
	return m
}

func computeLocalAABB(vertices []Vertex) AABB {
	lo, hi := vertices[0].Position, vertices[0].Position
	for _, v := range vertices[1:] {
		for i := range 3 {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	return AABB{Min: lo, Max: hi}
}

func (m *Mesh) Bounds() AABB { return m.bounds }

// Upload creates the vertex buffer, and the index buffer when the mesh is
// indexed.
func (m *Mesh) Upload(dev vulkan.ResourceDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev != nil {
		return nil
	}
	if len(m.Vertices) == 0 {
		return errors.Errorf("mesh %s has no vertices", m.Name)
	}

	vb, err := dev.CreateBuffer(vulkan.BufferUsageVertex, encodeVertices(m.Vertices))
	if err != nil {
		return errors.Wrapf(err, "failed to create vertex buffer for %s", m.Name)
	}
	ib := vulkan.NullBuffer
	if len(m.Indices) > 0 {
		data := make([]byte, 4*len(m.Indices))
		for i, idx := range m.Indices {
			binary.LittleEndian.PutUint32(data[4*i:], idx)
		}
		if ib, err = dev.CreateBuffer(vulkan.BufferUsageIndex, data); err != nil {
			dev.DestroyBuffer(vb)
			return errors.Wrapf(err, "failed to create index buffer for %s", m.Name)
		}
	}
	m.dev, m.vertices, m.indices = dev, vb, ib
	return nil
}

func encodeVertices(vertices []Vertex) []byte {
	data := make([]byte, 0, vertexSize*len(vertices))
	for _, v := range vertices {
		for _, f := range [6]float32{v.Position[0], v.Position[1], v.Position[2], v.Color[0], v.Color[1], v.Color[2]} {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}
	}
	return data
}

// Destroy frees the device buffers. The mesh can be uploaded again.
func (m *Mesh) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return
	}
	m.dev.DestroyBuffer(m.vertices)
	if m.indices != vulkan.NullBuffer {
		m.dev.DestroyBuffer(m.indices)
	}
	m.dev, m.vertices, m.indices = nil, vulkan.NullBuffer, vulkan.NullBuffer
}

func (m *Mesh) SetTransform(model mgl32.Mat4) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

func (m *Mesh) Transform() mgl32.Mat4 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *Mesh) Program() renderer.ShaderProgram { return m.prog }

func (m *Mesh) Pipeline() vulkan.Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pipeline
}

func (m *Mesh) SetPipeline(p vulkan.Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipeline = p
}

func (m *Mesh) RecordDraw(c *renderer.Cmd) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return errors.Wrap(ErrNotUploaded, m.Name)
	}
	push, ok := m.push[c.Framebuffer]
	if !ok {
		push = m.mvp()
		m.push[c.Framebuffer] = push
	}
	c.PushConstants(push)
	c.BindVertexBuffer(m.vertices)
	if m.indices != vulkan.NullBuffer {
		c.BindIndexBuffer(m.indices)
		c.DrawIndexed(uint32(len(m.Indices)), 1)
		return nil
	}
	c.Draw(uint32(len(m.Vertices)), 1)
	return nil
}

// UpdateUniforms advances the shared camera once per frame and the mesh's
// own spin.
func (m *Mesh) UpdateUniforms(frame uint64) {
	if m.camera != nil && m.prog.TryReserveUniform(frame) {
		m.camera.advance()
	}
	if m.Spin == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = m.model.Mul4(mgl32.HomogRotate3DY(m.Spin))
}

// UpdatePushConstants snapshots the current transform for framebuffer.
func (m *Mesh) UpdatePushConstants(framebuffer int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.push[framebuffer] = m.mvp()
}

func (m *Mesh) mvp() []byte {
	mvp := m.model
	if m.camera != nil {
		mvp = m.camera.ViewProjection().Mul4(m.model)
	}
	data := make([]byte, 0, 64)
	for _, f := range mvp {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
	}
	return data
}
