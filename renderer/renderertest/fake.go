// Package renderertest provides recording fakes of renderer.ShaderProgram
// and renderer.Drawable.
package renderertest

import (
	"encoding/binary"
	"sync"

	"frame-engine/renderer"
	"frame-engine/vulkan"
)

// Program is a ShaderProgram with a 16 byte push constant range and
// first-writer-wins uniform reservations.
type Program struct {
	name string

	mu       sync.Mutex
	reserved uint64
	clears   int
}

func NewProgram(name string) *Program {
	return &Program{name: name}
}

func (p *Program) Name() string { return p.name }

func (p *Program) Code() (vertex, fragment []byte) {
	return []byte{0x03, 0x02, 0x23, 0x07}, []byte{0x03, 0x02, 0x23, 0x07}
}

func (p *Program) VertexLayout() vulkan.VertexLayout {
	return vulkan.VertexLayout{
		Stride:     12,
		Attributes: []vulkan.VertexAttribute{{Location: 0, Format: vulkan.FormatR32G32B32Sfloat}},
	}
}

func (p *Program) PushConstantRange() vulkan.PushConstantRange {
	return vulkan.PushConstantRange{Stages: vulkan.ShaderStageVertex, Size: 16}
}

func (p *Program) Descriptors() []vulkan.DescriptorBinding { return nil }

func (p *Program) TryReserveUniform(frame uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved == frame {
		return false
	}
	p.reserved = frame
	return true
}

func (p *Program) ClearReservations() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserved = 0
	p.clears++
}

// Clears returns how many times ClearReservations ran.
func (p *Program) Clears() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

// Drawable draws Vertices vertices and pushes a per-framebuffer counter.
type Drawable struct {
	Vertices uint32
	// Fail makes RecordDraw return this error when set.
	Fail error

	prog *Program

	mu           sync.Mutex
	pipeline     vulkan.Pipeline
	pushed       map[int]uint32
	uniformCalls int
	uniformWrite int
	lastFrame    uint64
}

func NewDrawable(prog *Program) *Drawable {
	return &Drawable{Vertices: 3, prog: prog, pushed: make(map[int]uint32)}
}

func (d *Drawable) Program() renderer.ShaderProgram { return d.prog }

func (d *Drawable) Pipeline() vulkan.Pipeline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipeline
}

func (d *Drawable) SetPipeline(p vulkan.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipeline = p
}

func (d *Drawable) RecordDraw(c *renderer.Cmd) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail != nil {
		return d.Fail
	}
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[:], d.pushed[c.Framebuffer])
	c.PushConstants(buf[:])
	c.Draw(d.Vertices, 1)
	return nil
}

// UpdateUniforms counts calls and writes only when it wins the
// reservation for frame.
func (d *Drawable) UpdateUniforms(frame uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uniformCalls++
	d.lastFrame = frame
	if d.prog.TryReserveUniform(frame) {
		d.uniformWrite++
	}
}

func (d *Drawable) UpdatePushConstants(framebuffer int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushed[framebuffer]++
}

// UniformUpdates returns how many UpdateUniforms calls ran and how many of
// them wrote.
func (d *Drawable) UniformUpdates() (calls, writes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uniformCalls, d.uniformWrite
}

func (d *Drawable) LastFrame() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFrame
}
