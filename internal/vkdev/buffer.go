package vkdev

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/vulkan"
)

func (d *Device) allocate(reqs vk.MemoryRequirements, props vulkan.MemoryProperty) (vk.DeviceMemory, error) {
	reqs.Deref()
	typeIndex, err := d.FindMemoryType(reqs.MemoryTypeBits, props)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := check("allocate memory", vk.AllocateMemory(d.device, &info, nil, &mem)); err != nil {
		return nil, err
	}
	return mem, nil
}

func (d *Device) CreateBuffer(usage vulkan.BufferUsage, data []byte) (vulkan.Buffer, error) {
	if len(data) == 0 {
		return vulkan.NullBuffer, errors.New("empty buffer")
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(len(data)),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var b buffer
	if err := check("create buffer", vk.CreateBuffer(d.device, &info, nil, &b.buf)); err != nil {
		return vulkan.NullBuffer, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b.buf, &reqs)
	mem, err := d.allocate(reqs, vulkan.MemoryHostVisible|vulkan.MemoryHostCoherent)
	if err != nil {
		vk.DestroyBuffer(d.device, b.buf, nil)
		return vulkan.NullBuffer, err
	}
	b.mem = mem
	if err := check("bind buffer memory", vk.BindBufferMemory(d.device, b.buf, b.mem, 0)); err != nil {
		d.freeBuffer(b)
		return vulkan.NullBuffer, err
	}

	var ptr unsafe.Pointer
	if err := check("map memory", vk.MapMemory(d.device, b.mem, 0, vk.DeviceSize(len(data)), 0, &ptr)); err != nil {
		d.freeBuffer(b)
		return vulkan.NullBuffer, err
	}
	n := vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.device, b.mem)
	if n != len(data) {
		d.freeBuffer(b)
		return vulkan.NullBuffer, errors.Errorf("copied %d of %d bytes", n, len(data))
	}
	return vulkan.Buffer(d.buffers.put(b)), nil
}

func (d *Device) DestroyBuffer(h vulkan.Buffer) {
	if b, ok := d.buffers.take(uint64(h)); ok {
		d.freeBuffer(b)
	}
}

func (d *Device) freeBuffer(b buffer) {
	vk.DestroyBuffer(d.device, b.buf, nil)
	if b.mem != nil {
		vk.FreeMemory(d.device, b.mem, nil)
	}
}

// CreateImage creates a device local attachment image.
func (d *Device) CreateImage(info vulkan.ImageCreateInfo) (vulkan.Image, error) {
	usage := vk.ImageUsageColorAttachmentBit
	if info.Aspect&vulkan.AspectDepth != 0 {
		usage = vk.ImageUsageDepthStencilAttachmentBit
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	img := image{owned: true}
	if err := check("create image", vk.CreateImage(d.device, &createInfo, nil, &img.img)); err != nil {
		return vulkan.NullImage, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img.img, &reqs)
	mem, err := d.allocate(reqs, vulkan.MemoryDeviceLocal)
	if err != nil {
		vk.DestroyImage(d.device, img.img, nil)
		return vulkan.NullImage, err
	}
	img.mem = mem
	if err := check("bind image memory", vk.BindImageMemory(d.device, img.img, img.mem, 0)); err != nil {
		vk.DestroyImage(d.device, img.img, nil)
		vk.FreeMemory(d.device, img.mem, nil)
		return vulkan.NullImage, err
	}
	return vulkan.Image(d.images.put(img)), nil
}

// DestroyImage releases an image made by CreateImage. Swapchain images are
// left to their swapchain.
func (d *Device) DestroyImage(h vulkan.Image) {
	img, ok := d.images.get(uint64(h))
	if !ok || !img.owned {
		return
	}
	d.images.take(uint64(h))
	vk.DestroyImage(d.device, img.img, nil)
	vk.FreeMemory(d.device, img.mem, nil)
}
