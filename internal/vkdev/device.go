package vkdev

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/core"
	"frame-engine/vulkan"
)

const swapchainExtension = "VK_KHR_swapchain"

type queueFamilies struct {
	graphics, present       uint32
	hasGraphics, hasPresent bool
}

func (q queueFamilies) complete() bool { return q.hasGraphics && q.hasPresent }

func (d *Device) findQueueFamilies(pd vk.PhysicalDevice) queueFamilies {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)

	var q queueFamilies
	for i, p := range props {
		p.Deref()
		if p.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && !q.hasGraphics {
			q.graphics, q.hasGraphics = uint32(i), true
		}
		var present vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.surface, &present)
		// Prefer a family that does both.
		if present == vk.True && (!q.hasPresent || uint32(i) == q.graphics) {
			q.present, q.hasPresent = uint32(i), true
		}
	}
	return q
}

func hasSwapchainExtension(pd vk.PhysicalDevice) bool {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)
	exts := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, exts)
	for _, e := range exts {
		e.Deref()
		if vk.ToString(e.ExtensionName[:]) == swapchainExtension {
			return true
		}
	}
	return false
}

// rateDevice scores a physical device. Zero means unusable.
func (d *Device) rateDevice(pd vk.PhysicalDevice) uint32 {
	if !d.findQueueFamilies(pd).complete() || !hasSwapchainExtension(pd) {
		return 0
	}
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	props.Limits.Deref()

	score := uint32(1)
	if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		score += 1000
	}
	return score + props.Limits.MaxImageDimension2D
}

func (d *Device) pickPhysicalDevice() error {
	var count uint32
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return errors.New("failed to find GPUs with Vulkan support")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	var best vk.PhysicalDevice
	var bestScore uint32
	for _, pd := range devices {
		if score := d.rateDevice(pd); score > bestScore {
			best, bestScore = pd, score
		}
	}
	if bestScore == 0 {
		return errors.New("failed to find a suitable GPU")
	}
	d.physical = best

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(best, &props)
	props.Deref()
	d.name = vk.ToString(props.DeviceName[:])
	d.kind = deviceType(props.DeviceType)

	vk.GetPhysicalDeviceMemoryProperties(best, &d.memProps)
	d.memProps.Deref()
	return nil
}

func deviceType(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "unknown"
}

func (d *Device) createLogicalDevice() error {
	q := d.findQueueFamilies(d.physical)
	d.graphicsFamily, d.presentFamily = q.graphics, q.present

	families := []uint32{q.graphics}
	if q.present != q.graphics {
		families = append(families, q.present)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, f := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}
	}

	extensions := safeStrings([]string{swapchainExtension})
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if d.validation {
		layers := safeStrings([]string{validationLayer})
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var device vk.Device
	if err := check("create device", vk.CreateDevice(d.physical, &createInfo, nil, &device)); err != nil {
		return errors.Wrap(err, "failed to create logical device")
	}
	d.device = device
	return nil
}

// Queue returns the queue for class, creating its wrapper on first use.
// Transfer work goes to the graphics family.
func (d *Device) Queue(class vulkan.QueueClass, priority float32) (*vulkan.Queue, error) {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	if q, ok := d.queues[class]; ok {
		return q, nil
	}

	family := d.graphicsFamily
	if class == vulkan.QueuePresent {
		family = d.presentFamily
	}
	// Classes on the same family share one queue and its submission mutex.
	for _, q := range d.queues {
		if q.Family == family {
			d.queues[class] = q
			return q, nil
		}
	}

	var handle vk.Queue
	vk.GetDeviceQueue(d.device, family, 0, &handle)
	if handle == nil {
		return nil, errors.Errorf("no queue in family %d", family)
	}
	q := &vulkan.Queue{
		Class:  class,
		Family: family,
		Handle: vulkan.QueueHandle(d.vkq.put(handle)),
	}
	d.queues[class] = q
	core.Logger().Debug("queue retrieved", "class", class, "family", family, "priority", priority)
	return q, nil
}

func (d *Device) WaitIdle() error {
	return check("device wait idle", vk.DeviceWaitIdle(d.device))
}

func (d *Device) FindMemoryType(typeFilter uint32, props vulkan.MemoryProperty) (uint32, error) {
	want := vk.MemoryPropertyFlags(props)
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		t := d.memProps.MemoryTypes[i]
		t.Deref()
		if typeFilter&(1<<i) != 0 && t.PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errors.New("failed to find suitable memory type")
}

func (d *Device) DepthFormat() vulkan.Format { return d.depthFormat }

func (d *Device) findDepthFormat() vulkan.Format {
	candidates := []vk.Format{vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint}
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
			return vulkan.Format(f)
		}
	}
	return vulkan.FormatUndefined
}
