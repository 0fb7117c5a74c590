package scene_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frame-engine/renderer"
	"frame-engine/scene"
	"frame-engine/vulkan"
	"frame-engine/vulkan/vulkantest"
)

type program struct {
	mu       sync.Mutex
	reserved map[uint64]bool
}

func newProgram() *program { return &program{reserved: make(map[uint64]bool)} }

func (p *program) Name() string { return "mesh" }

func (p *program) Code() (vertex, fragment []byte) { return []byte{1}, []byte{2} }

func (p *program) VertexLayout() vulkan.VertexLayout { return scene.VertexLayout }

func (p *program) PushConstantRange() vulkan.PushConstantRange { return scene.PushConstantRange }

func (p *program) Descriptors() []vulkan.DescriptorBinding { return nil }

func (p *program) TryReserveUniform(frame uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved[frame] {
		return false
	}
	p.reserved[frame] = true
	return true
}

func (p *program) ClearReservations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.reserved)
}

var _ renderer.Drawable = (*scene.Mesh)(nil)

func matrixHex(m mgl32.Mat4) string {
	var data []byte
	for _, f := range m {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
	}
	return fmt.Sprintf("%x", data)
}

func TestMeshUploadAndDestroy(t *testing.T) {
	dev := vulkantest.New()

	cube := scene.CreateCube(1, newProgram(), nil)
	assert.Len(t, cube.Vertices, 24)
	assert.Len(t, cube.Indices, 36)
	assert.Equal(t, mgl32.Vec3{-0.5, -0.5, -0.5}, cube.Bounds().Min)
	assert.Equal(t, mgl32.Vec3{0.5, 0.5, 0.5}, cube.Bounds().Max)
	assert.Equal(t, mgl32.Vec3{}, cube.Bounds().Center())

	require.NoError(t, cube.Upload(dev))
	require.NoError(t, cube.Upload(dev))
	assert.Equal(t, 2, dev.LiveOf(vulkantest.KindBuffer))

	points := scene.NewMesh("points", cube.Vertices[:3], nil, newProgram(), nil)
	require.NoError(t, points.Upload(dev))
	assert.Equal(t, 3, dev.LiveOf(vulkantest.KindBuffer))

	cube.Destroy()
	points.Destroy()
	cube.Destroy()
	assert.Equal(t, 0, dev.LiveOf(vulkantest.KindBuffer))

	assert.Error(t, scene.NewMesh("empty", nil, nil, newProgram(), nil).Upload(dev))
}

func TestMeshUploadFailure(t *testing.T) {
	dev := vulkantest.New()
	dev.FailCreate(vulkantest.KindBuffer, 2)

	cube := scene.CreateCube(1, newProgram(), nil)
	assert.ErrorContains(t, cube.Upload(dev), "failed to create index buffer")
	assert.Equal(t, 0, dev.LiveOf(vulkantest.KindBuffer))
}

func TestMeshRecordsThroughUnit(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	dev := vulkantest.New()
	pools := vulkan.NewCommandPoolRegistry()
	swap := vulkan.NewSwapchainManager(pools, vulkan.SwapchainOptions{ImageCount: 2})
	require.NoError(t, swap.Init(dev, vulkantest.NewSurface(640, 480)))
	pool, err := pools.Get(dev, 0, vulkan.PoolResetCommandBuffer)
	require.NoError(t, err)

	prog := newProgram()
	tri := scene.CreateTriangle(prog, nil)
	move := mgl32.Translate3D(1, 2, 3)
	tri.SetTransform(move)

	u := renderer.NewUnit(dev, swap, renderer.Options{Name: "scene"})
	u.Add(tri)
	require.NoError(t, u.Init(pool))
	require.ErrorIs(t, u.Update(pool), scene.ErrNotUploaded)

	require.NoError(t, tri.Upload(dev))
	require.NoError(t, u.Update(pool))

	set, ok := u.Buffers(1)
	require.True(t, ok)
	ops := dev.CommandLog(set.Render)
	assert.Contains(t, ops, fmt.Sprintf("push %d %s", tri.Pipeline(), matrixHex(move)))
	assert.Contains(t, ops, "draw-indexed 3")
	assert.True(t, slices.ContainsFunc(ops, func(op string) bool { return strings.HasPrefix(op, "bind-vertex ") }))
	assert.True(t, slices.ContainsFunc(ops, func(op string) bool { return strings.HasPrefix(op, "bind-index ") }))

	info, ok := dev.PipelineInfo(tri.Pipeline())
	require.True(t, ok)
	assert.Equal(t, scene.VertexLayout, info.Vertex)
	assert.Equal(t, uint32(64), info.PushConstant.Size)

	// A new transform is only pushed after the next recording.
	tri.SetTransform(mgl32.Ident4())
	require.NoError(t, u.Record(1, renderer.RecordPushConstants))
	assert.Contains(t, dev.CommandLog(set.Render), fmt.Sprintf("push %d %s", tri.Pipeline(), matrixHex(mgl32.Ident4())))

	u.FreeCommandBuffers()
	u.Destroy()
	tri.Destroy()
	require.NoError(t, swap.Destroy())
	pools.Cleanup(dev)
	assert.Equal(t, 0, dev.Live())
	assert.Empty(t, dev.Violations())
}

// assertNear compares component by component with an absolute tolerance.
func assertNear(t *testing.T, want, got []float32, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "component %d of %v", i, got)
	}
}

func TestMeshUniformsShareCamera(t *testing.T) {
	prog := newProgram()
	cam := scene.NewCamera(mgl32.DegToRad(45), 1, 0.1, 10)
	cam.LookAt(mgl32.Vec3{3, 0, 0}, mgl32.Vec3{})
	cam.Orbit = math.Pi / 2

	a := scene.CreateCube(1, prog, cam)
	b := scene.CreateTriangle(prog, cam)
	b.Spin = math.Pi / 2

	a.UpdateUniforms(1)
	b.UpdateUniforms(1)
	assert.Equal(t, uint64(1), cam.Frames())
	assertNear(t, []float32{0, 0, -3}, cam.Position[:], 1e-5)

	assert.Equal(t, mgl32.Ident4(), a.Transform())
	rot := mgl32.HomogRotate3DY(math.Pi / 2)
	got := b.Transform()
	assertNear(t, rot[:], got[:], 1e-5)

	b.UpdateUniforms(2)
	a.UpdateUniforms(2)
	assert.Equal(t, uint64(2), cam.Frames())
}

func TestCameraViewProjection(t *testing.T) {
	cam := scene.NewCamera(mgl32.DegToRad(60), 4.0/3.0, 0.1, 100)
	cam.LookAt(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{})
	cam.UpdateAspectRatio(1600, 900)
	assert.InDelta(t, 16.0/9.0, cam.AspectRatio, 1e-6)
	cam.UpdateAspectRatio(100, 0)
	assert.InDelta(t, 16.0/9.0, cam.AspectRatio, 1e-6)

	// A point above the target lands in the upper half of Vulkan clip
	// space, where y is negative.
	clip := cam.ViewProjection().Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	assert.Less(t, clip.Y()/clip.W(), float32(0))
}

func writeGLB(t *testing.T, build func(doc *gltf.Document)) string {
	t.Helper()
	doc := gltf.NewDocument()
	build(doc)
	path := filepath.Join(t.TempDir(), "model.glb")
	require.NoError(t, gltf.SaveBinary(doc, path))
	return path
}

func TestLoadGLTF(t *testing.T) {
	path := writeGLB(t, func(doc *gltf.Document) {
		doc.Materials = []*gltf.Material{{
			Name:                 "red",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorFactor: &[4]float64{1, 0, 0, 1}},
		}}
		doc.Meshes = []*gltf.Mesh{{
			Name: "tri",
			Primitives: []*gltf.Primitive{{
				Indices: gltf.Index(modeler.WriteIndices(doc, []uint16{0, 1, 2})),
				Attributes: map[string]int{
					"POSITION": modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}),
				},
				Material: gltf.Index(0),
			}},
		}}
		doc.Nodes = []*gltf.Node{
			{Name: "root", Translation: [3]float64{0, 0, -2}, Children: []int{1}},
			{Name: "child", Mesh: gltf.Index(0), Translation: [3]float64{1, 0, 0}},
		}
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	})

	prog := newProgram()
	meshes, err := scene.LoadGLTF(path, prog, nil)
	require.NoError(t, err)
	require.Len(t, meshes, 1)

	m := meshes[0]
	assert.Equal(t, "tri_p0", m.Name)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	require.Len(t, m.Vertices, 3)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, m.Vertices[1].Position)
	for _, v := range m.Vertices {
		assert.Equal(t, mgl32.Vec3{1, 0, 0}, v.Color)
	}
	assert.Equal(t, renderer.ShaderProgram(prog), m.Program())
	want, got := mgl32.Translate3D(1, 0, -2), m.Transform()
	assertNear(t, want[:], got[:], 1e-6)
}

func TestLoadGLTFVertexColors(t *testing.T) {
	path := writeGLB(t, func(doc *gltf.Document) {
		doc.Meshes = []*gltf.Mesh{{
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]int{
					"POSITION": modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}),
					"COLOR_0":  modeler.WriteColor(doc, [][3]uint8{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}}),
				},
			}},
		}}
		doc.Nodes = []*gltf.Node{{Name: "a", Mesh: gltf.Index(0)}, {Name: "b", Mesh: gltf.Index(0)}}
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0, 1)
	})

	meshes, err := scene.LoadGLTF(path, newProgram(), nil)
	require.NoError(t, err)
	require.Len(t, meshes, 2, "one mesh per node instance")
	assert.Equal(t, "mesh0_p0", meshes[0].Name)
	assert.Empty(t, meshes[0].Indices)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, meshes[0].Vertices[1].Color)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, meshes[1].Vertices[2].Color)
}

func TestLoadGLTFErrors(t *testing.T) {
	_, err := scene.LoadGLTF(filepath.Join(t.TempDir(), "missing.glb"), newProgram(), nil)
	assert.Error(t, err)

	path := writeGLB(t, func(doc *gltf.Document) {
		doc.Nodes = []*gltf.Node{{Name: "empty"}}
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	})
	_, err = scene.LoadGLTF(path, newProgram(), nil)
	assert.ErrorContains(t, err, "no drawable meshes")
}
