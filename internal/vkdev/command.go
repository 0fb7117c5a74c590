package vkdev

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/core"
	"frame-engine/vulkan"
)

func (d *Device) CreateCommandPool(family uint32, flags vulkan.CommandPoolFlags) (vulkan.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(flags),
		QueueFamilyIndex: family,
	}
	var p vk.CommandPool
	if err := check("create command pool", vk.CreateCommandPool(d.device, &info, nil, &p)); err != nil {
		return vulkan.NullCommandPool, err
	}
	return vulkan.CommandPool(d.pools.put(p)), nil
}

func (d *Device) DestroyCommandPool(h vulkan.CommandPool) {
	if p, ok := d.pools.take(uint64(h)); ok {
		vk.DestroyCommandPool(d.device, p, nil)
	}
}

func (d *Device) AllocateCommandBuffers(h vulkan.CommandPool, count int) ([]vulkan.CommandBuffer, error) {
	pool, ok := d.pools.get(uint64(h))
	if !ok {
		return nil, errors.Errorf("unknown command pool %d", h)
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	native := make([]vk.CommandBuffer, count)
	if err := check("allocate command buffers", vk.AllocateCommandBuffers(d.device, &info, native)); err != nil {
		return nil, err
	}
	out := make([]vulkan.CommandBuffer, count)
	for i, cb := range native {
		out[i] = vulkan.CommandBuffer(d.cbs.put(commandBuffer{cb: cb, pool: pool}))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(h vulkan.CommandPool, cbs []vulkan.CommandBuffer) {
	pool, ok := d.pools.get(uint64(h))
	if !ok {
		return
	}
	native := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if c, ok := d.cbs.take(uint64(cb)); ok {
			native = append(native, c.cb)
		}
	}
	if len(native) > 0 {
		vk.FreeCommandBuffers(d.device, pool, uint32(len(native)), native)
	}
}

// cb resolves a command buffer handle. Recording into an unknown buffer is
// a programming error; it is logged and the command dropped.
func (d *Device) cb(h vulkan.CommandBuffer) (vk.CommandBuffer, bool) {
	c, ok := d.cbs.get(uint64(h))
	if !ok {
		core.Logger().Error("unknown command buffer", "handle", h)
	}
	return c.cb, ok
}

func (d *Device) ResetCommandBuffer(h vulkan.CommandBuffer) error {
	cb, ok := d.cb(h)
	if !ok {
		return errors.Errorf("unknown command buffer %d", h)
	}
	return check("reset command buffer", vk.ResetCommandBuffer(cb, 0))
}

func (d *Device) BeginCommandBuffer(h vulkan.CommandBuffer, oneTime bool) error {
	cb, ok := d.cb(h)
	if !ok {
		return errors.Errorf("unknown command buffer %d", h)
	}
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if oneTime {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check("begin command buffer", vk.BeginCommandBuffer(cb, &info))
}

func (d *Device) EndCommandBuffer(h vulkan.CommandBuffer) error {
	cb, ok := d.cb(h)
	if !ok {
		return errors.Errorf("unknown command buffer %d", h)
	}
	return check("end command buffer", vk.EndCommandBuffer(cb))
}

func accessFor(layout vulkan.ImageLayout) vk.AccessFlags {
	switch layout {
	case vulkan.LayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit)
	case vulkan.LayoutDepthStencilAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	case vulkan.LayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	}
	return 0
}

func (d *Device) CmdImageBarrier(h vulkan.CommandBuffer, b vulkan.ImageBarrier) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	img, ok := d.images.get(uint64(b.Image))
	if !ok {
		core.Logger().Error("barrier on unknown image", "image", b.Image)
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       accessFor(b.OldLayout),
		DstAccessMask:       accessFor(b.NewLayout),
		OldLayout:           vk.ImageLayout(b.OldLayout),
		NewLayout:           vk.ImageLayout(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(b.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (d *Device) CmdBeginRenderPass(h vulkan.CommandBuffer, begin vulkan.RenderPassBegin) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	rp, _ := d.renderPasses.get(uint64(begin.RenderPass))
	fb, _ := d.framebuffers.get(uint64(begin.Framebuffer))

	// Surplus clear values are ignored for passes without depth.
	clear := make([]vk.ClearValue, 2)
	clear[0].SetColor(begin.Clear[:])
	clear[1].SetDepthStencil(1, 0)

	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cb, &info, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(h vulkan.CommandBuffer) {
	if cb, ok := d.cb(h); ok {
		vk.CmdEndRenderPass(cb)
	}
}

func (d *Device) CmdBindPipeline(h vulkan.CommandBuffer, p vulkan.Pipeline) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	if pl, ok := d.pipelines.get(uint64(p)); ok {
		vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, pl.p)
	}
}

func (d *Device) CmdBindVertexBuffer(h vulkan.CommandBuffer, b vulkan.Buffer, offset uint64) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	if buf, ok := d.buffers.get(uint64(b)); ok {
		vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{buf.buf}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

func (d *Device) CmdBindIndexBuffer(h vulkan.CommandBuffer, b vulkan.Buffer, offset uint64) {
	cb, ok := d.cb(h)
	if !ok {
		return
	}
	if buf, ok := d.buffers.get(uint64(b)); ok {
		vk.CmdBindIndexBuffer(cb, buf.buf, vk.DeviceSize(offset), vk.IndexTypeUint32)
	}
}

func (d *Device) CmdPushConstants(h vulkan.CommandBuffer, p vulkan.Pipeline, stages vulkan.ShaderStage, offset uint32, data []byte) {
	cb, ok := d.cb(h)
	if !ok || len(data) == 0 {
		return
	}
	if pl, ok := d.pipelines.get(uint64(p)); ok {
		vk.CmdPushConstants(cb, pl.layout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
	}
}

func (d *Device) CmdDraw(h vulkan.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb, ok := d.cb(h); ok {
		vk.CmdDraw(cb, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (d *Device) CmdDrawIndexed(h vulkan.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb, ok := d.cb(h); ok {
		vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}
