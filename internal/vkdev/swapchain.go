package vkdev

import (
	"time"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/core"
	"frame-engine/vulkan"
)

func (d *Device) checkSurface(s vulkan.Surface) error {
	if s != surfaceHandle || d.surface == nil {
		return errors.Errorf("unknown surface %d", s)
	}
	return nil
}

func (d *Device) SurfaceCapabilities(s vulkan.Surface) (vulkan.SurfaceCapabilities, error) {
	if err := d.checkSurface(s); err != nil {
		return vulkan.SurfaceCapabilities{}, err
	}
	var caps vk.SurfaceCapabilities
	if err := check("get surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return vulkan.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return vulkan.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  vulkan.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent: vulkan.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent: vulkan.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}, nil
}

func (d *Device) SurfaceFormats(s vulkan.Surface) ([]vulkan.SurfaceFormat, error) {
	if err := d.checkSurface(s); err != nil {
		return nil, err
	}
	var count uint32
	if err := check("get surface formats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, formats)

	out := make([]vulkan.SurfaceFormat, len(formats))
	for i, f := range formats {
		f.Deref()
		out[i] = vulkan.SurfaceFormat{Format: vulkan.Format(f.Format), ColorSpace: vulkan.ColorSpace(f.ColorSpace)}
	}
	return out, nil
}

func (d *Device) SurfacePresentModes(s vulkan.Surface) ([]vulkan.PresentMode, error) {
	if err := d.checkSurface(s); err != nil {
		return nil, err
	}
	var count uint32
	if err := check("get surface present modes", vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, modes)

	out := make([]vulkan.PresentMode, len(modes))
	for i, m := range modes {
		out[i] = vulkan.PresentMode(m)
	}
	return out, nil
}

func (d *Device) CreateSwapchain(info vulkan.SwapchainCreateInfo) (vulkan.Swapchain, error) {
	if err := d.checkSurface(info.Surface); err != nil {
		return vulkan.NullSwapchain, err
	}
	var caps vk.SurfaceCapabilities
	vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)
	caps.Deref()

	old := vk.NullSwapchain
	if prev, ok := d.swapchains.get(uint64(info.OldSwapchain)); ok {
		old = prev.sc
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.MinImages,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if d.graphicsFamily != d.presentFamily {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{d.graphicsFamily, d.presentFamily}
	}

	var sc vk.Swapchain
	if err := check("create swapchain", vk.CreateSwapchain(d.device, &createInfo, nil, &sc)); err != nil {
		return vulkan.NullSwapchain, err
	}
	return vulkan.Swapchain(d.swapchains.put(&swapchain{sc: sc})), nil
}

func (d *Device) DestroySwapchain(h vulkan.Swapchain) {
	sc, ok := d.swapchains.take(uint64(h))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.take(uint64(img))
	}
	vk.DestroySwapchain(d.device, sc.sc, nil)
}

func (d *Device) SwapchainImages(h vulkan.Swapchain) ([]vulkan.Image, error) {
	sc, ok := d.swapchains.get(uint64(h))
	if !ok {
		return nil, errors.Errorf("unknown swapchain %d", h)
	}
	if sc.images != nil {
		return sc.images, nil
	}

	var count uint32
	if err := check("get swapchain images", vk.GetSwapchainImages(d.device, sc.sc, &count, nil)); err != nil {
		return nil, err
	}
	native := make([]vk.Image, count)
	vk.GetSwapchainImages(d.device, sc.sc, &count, native)

	sc.images = make([]vulkan.Image, len(native))
	for i, img := range native {
		sc.images[i] = vulkan.Image(d.images.put(image{img: img}))
	}
	return sc.images, nil
}

func (d *Device) CreateImageView(h vulkan.Image, format vulkan.Format, aspect vulkan.ImageAspect) (vulkan.ImageView, error) {
	img, ok := d.images.get(uint64(h))
	if !ok {
		return vulkan.NullImageView, errors.Errorf("unknown image %d", h)
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.img,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var v vk.ImageView
	if err := check("create image view", vk.CreateImageView(d.device, &info, nil, &v)); err != nil {
		return vulkan.NullImageView, err
	}
	return vulkan.ImageView(d.views.put(v)), nil
}

func (d *Device) DestroyImageView(h vulkan.ImageView) {
	if v, ok := d.views.take(uint64(h)); ok {
		vk.DestroyImageView(d.device, v, nil)
	}
}

// AcquireNextImage treats a suboptimal swapchain as a successful acquire;
// the window's resize callback rebuilds it.
func (d *Device) AcquireNextImage(h vulkan.Swapchain, timeout time.Duration, signal vulkan.Semaphore, fence vulkan.Fence) (uint32, error) {
	sc, ok := d.swapchains.get(uint64(h))
	if !ok {
		return 0, vulkan.NewResultError("acquire next image", vulkan.ErrorOutOfDate)
	}
	var sem vk.Semaphore
	if s, ok := d.semaphores.get(uint64(signal)); ok {
		sem = s
	}
	f := vk.NullFence
	if nf, ok := d.fences.get(uint64(fence)); ok {
		f = nf
	}

	var idx uint32
	res := vk.AcquireNextImage(d.device, sc.sc, nanos(timeout), sem, f, &idx)
	if res == vk.Suboptimal {
		core.Logger().Debug("swapchain suboptimal on acquire", "image", idx)
		return idx, nil
	}
	return idx, check("acquire next image", res)
}

func (d *Device) queue(q *vulkan.Queue) (vk.Queue, error) {
	handle, ok := d.vkq.get(uint64(q.Handle))
	if !ok {
		return nil, errors.Errorf("unknown queue %d", q.Handle)
	}
	return handle, nil
}

func (d *Device) QueueSubmit(q *vulkan.Queue, submits []vulkan.SubmitInfo, fence vulkan.Fence) error {
	queue, err := d.queue(q)
	if err != nil {
		return err
	}
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		wait, err := d.semaphoreList(s.WaitSemaphores)
		if err != nil {
			return err
		}
		signal, err := d.semaphoreList(s.SignalSemaphores)
		if err != nil {
			return err
		}
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for j, st := range s.WaitStages {
			stages[j] = vk.PipelineStageFlags(st)
		}
		cbs := make([]vk.CommandBuffer, 0, len(s.CommandBuffers))
		for _, h := range s.CommandBuffers {
			cb, ok := d.cb(h)
			if !ok {
				return errors.Errorf("unknown command buffer %d", h)
			}
			cbs = append(cbs, cb)
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(wait)),
			PWaitSemaphores:      wait,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cbs)),
			PCommandBuffers:      cbs,
			SignalSemaphoreCount: uint32(len(signal)),
			PSignalSemaphores:    signal,
		}
	}

	f := vk.NullFence
	if fence != vulkan.NullFence {
		nf, ok := d.fences.get(uint64(fence))
		if !ok {
			return errors.Errorf("unknown fence %d", fence)
		}
		f = nf
	}
	return check("queue submit", vk.QueueSubmit(queue, uint32(len(infos)), infos, f))
}

func (d *Device) QueuePresent(q *vulkan.Queue, info vulkan.PresentInfo) error {
	queue, err := d.queue(q)
	if err != nil {
		return err
	}
	sc, ok := d.swapchains.get(uint64(info.Swapchain))
	if !ok {
		return vulkan.NewResultError("queue present", vulkan.ErrorOutOfDate)
	}
	wait, err := d.semaphoreList(info.WaitSemaphores)
	if err != nil {
		return err
	}
	present := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.sc},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	res := vk.QueuePresent(queue, &present)
	if res == vk.Suboptimal {
		return nil
	}
	return check("queue present", res)
}
