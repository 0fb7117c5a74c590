// Package opengl is the lower-capability presenter the demo falls back to
// when no Vulkan device can be brought up. It draws the same meshes with a
// fixed OpenGL 4.1 program.
package opengl

import (
	"strings"

	gl "github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"frame-engine/core"
	"frame-engine/scene"
)

type gpuMesh struct {
	vao, vbo, ebo uint32
	indexCount    int32
	hasIndices    bool
}

// Presenter draws meshes into the current GL context.
type Presenter struct {
	program uint32
	mvpLoc  int32
	meshes  map[*scene.Mesh]*gpuMesh
	clear   core.Color
}

const vertSrc = `
#version 410 core
layout(location = 0) in vec3 inPosition;
layout(location = 1) in vec3 inColor;

uniform mat4 mvp;

out vec3 fragColor;

void main() {
    gl_Position = mvp * vec4(inPosition, 1.0);
    fragColor = inColor;
}
` + "\x00"

const fragSrc = `
#version 410 core
in vec3 fragColor;
out vec4 outColor;

void main() {
    outColor = vec4(fragColor, 1.0);
}
` + "\x00"

// glClip undoes the Y flip scene.Camera applies for Vulkan clip space.
var glClip = mgl32.Scale3D(1, -1, 1)

// NewPresenter initializes OpenGL. The window's context must be current.
func NewPresenter(clear core.Color) (*Presenter, error) {
	if err := gl.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize OpenGL")
	}
	core.Logger().Info("OpenGL fallback presenter", "version", gl.GoStr(gl.GetString(gl.VERSION)))

	prog, err := newProgram(vertSrc, fragSrc)
	if err != nil {
		return nil, errors.Wrap(err, "shader compile")
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)

	return &Presenter{
		program: prog,
		mvpLoc:  gl.GetUniformLocation(prog, gl.Str("mvp\x00")),
		meshes:  make(map[*scene.Mesh]*gpuMesh),
		clear:   clear,
	}, nil
}

func (p *Presenter) SetViewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}

func (p *Presenter) SetClearColor(c core.Color) {
	p.clear = c
}

// Frame clears the framebuffer and draws every mesh with its transform.
// viewProj is the camera's Vulkan view-projection.
func (p *Presenter) Frame(meshes []*scene.Mesh, viewProj mgl32.Mat4) {
	gl.ClearColor(p.clear.R, p.clear.G, p.clear.B, p.clear.A)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	gl.UseProgram(p.program)
	vp := glClip.Mul4(viewProj)
	for _, m := range meshes {
		gpu := p.ensureUploaded(m)
		if gpu == nil {
			continue
		}
		mvp := vp.Mul4(m.Transform())
		gl.UniformMatrix4fv(p.mvpLoc, 1, false, &mvp[0])

		gl.BindVertexArray(gpu.vao)
		if gpu.hasIndices {
			gl.DrawElements(gl.TRIANGLES, gpu.indexCount, gl.UNSIGNED_INT, nil)
		} else {
			gl.DrawArrays(gl.TRIANGLES, 0, int32(len(m.Vertices)))
		}
	}
	gl.BindVertexArray(0)
}

// Release frees the GL buffers of mesh.
func (p *Presenter) Release(mesh *scene.Mesh) {
	gpu, ok := p.meshes[mesh]
	if !ok {
		return
	}
	gl.DeleteVertexArrays(1, &gpu.vao)
	gl.DeleteBuffers(1, &gpu.vbo)
	if gpu.hasIndices {
		gl.DeleteBuffers(1, &gpu.ebo)
	}
	delete(p.meshes, mesh)
}

func (p *Presenter) Destroy() {
	for mesh := range p.meshes {
		p.Release(mesh)
	}
	gl.DeleteProgram(p.program)
}

func (p *Presenter) ensureUploaded(mesh *scene.Mesh) *gpuMesh {
	if gpu, ok := p.meshes[mesh]; ok {
		return gpu
	}
	if len(mesh.Vertices) == 0 {
		return nil
	}

	// scene.Vertex is two packed Vec3s.
	const stride = int32(24)
	gpu := &gpuMesh{
		indexCount: int32(len(mesh.Indices)),
		hasIndices: len(mesh.Indices) > 0,
	}

	gl.GenVertexArrays(1, &gpu.vao)
	gl.GenBuffers(1, &gpu.vbo)
	gl.BindVertexArray(gpu.vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, gpu.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(mesh.Vertices)*int(stride), gl.Ptr(mesh.Vertices), gl.STATIC_DRAW)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 12)

	if gpu.hasIndices {
		gl.GenBuffers(1, &gpu.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gpu.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(mesh.Indices)*4, gl.Ptr(mesh.Indices), gl.STATIC_DRAW)
	}
	gl.BindVertexArray(0)

	p.meshes[mesh] = gpu
	return gpu
}

func newProgram(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compileShader(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, errors.Wrap(err, "vertex")
	}
	frag, err := compileShader(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, errors.Wrap(err, "fragment")
	}

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	if msg, ok := status(prog, gl.LINK_STATUS, gl.GetProgramiv, gl.GetProgramInfoLog); !ok {
		gl.DeleteProgram(prog)
		return 0, errors.Errorf("link failed: %s", msg)
	}
	return prog, nil
}

func compileShader(src string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	if msg, ok := status(shader, gl.COMPILE_STATUS, gl.GetShaderiv, gl.GetShaderInfoLog); !ok {
		gl.DeleteShader(shader)
		return 0, errors.Errorf("compile failed: %s", msg)
	}
	return shader, nil
}

// status reports whether the boolean parameter pname of a shader or program
// object is set, and its info log when it is not.
func status(obj, pname uint32,
	get func(uint32, uint32, *int32),
	infoLog func(uint32, int32, *int32, *uint8)) (string, bool) {
	var ok int32
	get(obj, pname, &ok)
	if ok != gl.FALSE {
		return "", true
	}
	var n int32
	get(obj, gl.INFO_LOG_LENGTH, &n)
	if n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	infoLog(obj, n, nil, &buf[0])
	return strings.TrimRight(string(buf), "\x00\n"), false
}
