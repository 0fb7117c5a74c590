package vkdev

import (
	"unsafe"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

func (d *Device) createInstance(extensions []string, opts Options) error {
	name := opts.AppName
	if name == "" {
		name = "Frame Engine"
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeStrings([]string{name})[0],
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "frame-engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion10,
	}

	validation := opts.Validation
	if validation && !validationLayerSupported() {
		core.Logger().Warn("validation layer requested but not available", "layer", validationLayer)
		validation = false
	}
	if validation {
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}
	var dbgInfo *vk.DebugReportCallbackCreateInfo
	if validation {
		layers := safeStrings([]string{validationLayer})
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
		dbgInfo = &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit | vk.DebugReportWarningBit | vk.DebugReportErrorBit),
			PfnCallback: debugReport,
		}
		createInfo.PNext = unsafe.Pointer(dbgInfo.Ref())
	}

	var instance vk.Instance
	if err := check("create instance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return errors.Wrap(err, "failed to create vulkan instance")
	}
	d.instance = instance
	d.validation = validation
	vk.InitInstance(instance)

	if validation {
		var dbg vk.DebugReportCallback
		if err := check("create debug report callback", vk.CreateDebugReportCallback(instance, dbgInfo, nil, &dbg)); err != nil {
			core.Logger().Warn("failed to set up debug messenger", "err", err)
		} else {
			d.debug = dbg
		}
	}
	return nil
}

func (d *Device) destroyInstance() {
	if d.instance == nil {
		return
	}
	if d.surface != nil {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = nil
	}
	if d.debug != nil {
		vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
		d.debug = nil
	}
	vk.DestroyInstance(d.instance, nil)
	d.instance = nil
}

func debugReport(flags vk.DebugReportFlags, _ vk.DebugReportObjectType, _ uint64, _ uint,
	code int32, prefix string, message string, _ unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.Logger().Error("vulkan validation", "prefix", prefix, "code", code, "msg", message)
	default:
		core.Logger().Warn("vulkan validation", "prefix", prefix, "code", code, "msg", message)
	}
	return vk.False
}

func validationLayerSupported() bool {
	var count uint32
	vk.EnumerateInstanceLayerProperties(&count, nil)
	layers := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, layers)
	for _, l := range layers {
		l.Deref()
		if vk.ToString(l.LayerName[:]) == validationLayer {
			return true
		}
	}
	return false
}
