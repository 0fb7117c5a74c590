package vkdev

import (
	"encoding/binary"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"frame-engine/vulkan"
)

// CreateRenderPass builds a single-subpass pass. The color attachment
// stays in the attachment layout; presentation transitions are recorded
// by the caller as barriers.
func (d *Device) CreateRenderPass(info vulkan.RenderPassCreateInfo) (vulkan.RenderPass, error) {
	loadOp := vk.AttachmentLoadOpClear
	if info.Load {
		loadOp = vk.AttachmentLoadOpLoad
	}
	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(info.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	colorRefs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorRefs,
	}
	if info.DepthFormat != vulkan.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(info.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}
	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if err := check("create render pass", vk.CreateRenderPass(d.device, &createInfo, nil, &rp)); err != nil {
		return vulkan.NullRenderPass, err
	}
	return vulkan.RenderPass(d.renderPasses.put(rp)), nil
}

func (d *Device) DestroyRenderPass(h vulkan.RenderPass) {
	if rp, ok := d.renderPasses.take(uint64(h)); ok {
		vk.DestroyRenderPass(d.device, rp, nil)
	}
}

func (d *Device) CreateFramebuffer(info vulkan.FramebufferCreateInfo) (vulkan.Framebuffer, error) {
	rp, ok := d.renderPasses.get(uint64(info.RenderPass))
	if !ok {
		return vulkan.NullFramebuffer, errors.Errorf("unknown render pass %d", info.RenderPass)
	}
	views := make([]vk.ImageView, len(info.Attachments))
	for i, h := range info.Attachments {
		v, ok := d.views.get(uint64(h))
		if !ok {
			return vulkan.NullFramebuffer, errors.Errorf("unknown image view %d", h)
		}
		views[i] = v
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check("create framebuffer", vk.CreateFramebuffer(d.device, &createInfo, nil, &fb)); err != nil {
		return vulkan.NullFramebuffer, err
	}
	return vulkan.Framebuffer(d.framebuffers.put(fb)), nil
}

func (d *Device) DestroyFramebuffer(h vulkan.Framebuffer) {
	if fb, ok := d.framebuffers.take(uint64(h)); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

func (d *Device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Errorf("invalid SPIR-V size %d", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var m vk.ShaderModule
	if err := check("create shader module", vk.CreateShaderModule(d.device, &info, nil, &m)); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateGraphicsPipeline builds a triangle-list pipeline with a fixed
// viewport covering info.Extent.
func (d *Device) CreateGraphicsPipeline(info vulkan.PipelineCreateInfo) (vulkan.Pipeline, error) {
	rp, ok := d.renderPasses.get(uint64(info.RenderPass))
	if !ok {
		return vulkan.NullPipeline, errors.Errorf("unknown render pass %d", info.RenderPass)
	}
	vert, err := d.createShaderModule(info.VertexCode)
	if err != nil {
		return vulkan.NullPipeline, errors.Wrap(err, "vertex shader")
	}
	defer vk.DestroyShaderModule(d.device, vert, nil)
	frag, err := d.createShaderModule(info.FragmentCode)
	if err != nil {
		return vulkan.NullPipeline, errors.Wrap(err, "fragment shader")
	}
	defer vk.DestroyShaderModule(d.device, frag, nil)

	var pl pipeline
	if len(info.Descriptors) > 0 {
		bindings := make([]vk.DescriptorSetLayoutBinding, len(info.Descriptors))
		for i, b := range info.Descriptors {
			bindings[i] = vk.DescriptorSetLayoutBinding{
				Binding:         b.Binding,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: max(b.Count, 1),
				StageFlags:      vk.ShaderStageFlags(b.Stages),
			}
		}
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if err := check("create descriptor set layout", vk.CreateDescriptorSetLayout(d.device, &layoutInfo, nil, &pl.setLayout)); err != nil {
			return vulkan.NullPipeline, err
		}
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{SType: vk.StructureTypePipelineLayoutCreateInfo}
	if pl.setLayout != nil {
		layoutInfo.SetLayoutCount = 1
		layoutInfo.PSetLayouts = []vk.DescriptorSetLayout{pl.setLayout}
	}
	if info.PushConstant.Size > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(info.PushConstant.Stages),
			Offset:     info.PushConstant.Offset,
			Size:       info.PushConstant.Size,
		}}
	}
	if err := check("create pipeline layout", vk.CreatePipelineLayout(d.device, &layoutInfo, nil, &pl.layout)); err != nil {
		d.destroyPipeline(pl)
		return vulkan.NullPipeline, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vert, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: frag, PName: "main\x00"},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{SType: vk.StructureTypePipelineVertexInputStateCreateInfo}
	if info.Vertex.Stride > 0 {
		attrs := make([]vk.VertexInputAttributeDescription, len(info.Vertex.Attributes))
		for i, a := range info.Vertex.Attributes {
			attrs[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vk.Format(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    info.Vertex.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attrs))
		vertexInput.PVertexAttributeDescriptions = attrs
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	extent := vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MaxDepth: 1,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Extent: extent}},
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLess,
		MaxDepthBounds: 1,
	}
	if info.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
	}
	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}},
	}

	createInfos := []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		Layout:              pl.layout,
		RenderPass:          rp,
	}}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("create graphics pipeline", vk.CreateGraphicsPipelines(d.device, vk.PipelineCache(vk.NullHandle), 1, createInfos, nil, pipelines)); err != nil {
		d.destroyPipeline(pl)
		return vulkan.NullPipeline, err
	}
	pl.p = pipelines[0]
	return vulkan.Pipeline(d.pipelines.put(pl)), nil
}

func (d *Device) DestroyPipeline(h vulkan.Pipeline) {
	if pl, ok := d.pipelines.take(uint64(h)); ok {
		d.destroyPipeline(pl)
	}
}

func (d *Device) destroyPipeline(pl pipeline) {
	if pl.p != nil {
		vk.DestroyPipeline(d.device, pl.p, nil)
	}
	if pl.layout != nil {
		vk.DestroyPipelineLayout(d.device, pl.layout, nil)
	}
	if pl.setLayout != nil {
		vk.DestroyDescriptorSetLayout(d.device, pl.setLayout, nil)
	}
}
