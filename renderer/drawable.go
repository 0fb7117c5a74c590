package renderer

import (
	"frame-engine/vulkan"
)

// ShaderProgram describes the shaders and fixed inputs one pipeline is
// built from.
type ShaderProgram interface {
	Name() string
	// Code returns the SPIR-V of the vertex and fragment stages.
	Code() (vertex, fragment []byte)
	VertexLayout() vulkan.VertexLayout
	PushConstantRange() vulkan.PushConstantRange
	Descriptors() []vulkan.DescriptorBinding

	// TryReserveUniform claims the program's shared uniform slot for frame.
	// Only the first caller in a frame gets true.
	TryReserveUniform(frame uint64) bool
	// ClearReservations forgets every claim.
	ClearReservations()
}

// Drawable is an object a Unit records draw calls for.
type Drawable interface {
	Program() ShaderProgram
	// Pipeline returns the pipeline set by the unit, or vulkan.NullPipeline
	// when none is available.
	Pipeline() vulkan.Pipeline
	SetPipeline(p vulkan.Pipeline)

	// RecordDraw records the drawable's commands. The pipeline is already
	// bound.
	RecordDraw(c *Cmd) error
	// UpdateUniforms runs once per presented frame after the device
	// finished reading the previous frame's uniforms.
	UpdateUniforms(frame uint64)
	// UpdatePushConstants refreshes the push constant data the next
	// RecordDraw for framebuffer will push.
	UpdatePushConstants(framebuffer int)
}

// Cmd records into one command buffer on behalf of a drawable.
type Cmd struct {
	Framebuffer int

	dev      vulkan.CommandDevice
	cb       vulkan.CommandBuffer
	pipeline vulkan.Pipeline
	push     vulkan.PushConstantRange
}

func (c *Cmd) CommandBuffer() vulkan.CommandBuffer { return c.cb }

// PushConstants pushes data at the start of the program's push constant
// range. Data beyond the range is dropped.
func (c *Cmd) PushConstants(data []byte) {
	if c.push.Size == 0 || len(data) == 0 {
		return
	}
	if uint32(len(data)) > c.push.Size {
		data = data[:c.push.Size]
	}
	c.dev.CmdPushConstants(c.cb, c.pipeline, c.push.Stages, c.push.Offset, data)
}

func (c *Cmd) BindVertexBuffer(b vulkan.Buffer) {
	c.dev.CmdBindVertexBuffer(c.cb, b, 0)
}

func (c *Cmd) BindIndexBuffer(b vulkan.Buffer) {
	c.dev.CmdBindIndexBuffer(c.cb, b, 0)
}

func (c *Cmd) Draw(vertexCount, instanceCount uint32) {
	c.dev.CmdDraw(c.cb, vertexCount, instanceCount, 0, 0)
}

func (c *Cmd) DrawIndexed(indexCount, instanceCount uint32) {
	c.dev.CmdDrawIndexed(c.cb, indexCount, instanceCount, 0, 0, 0)
}
