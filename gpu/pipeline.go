//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// planeUniformSize is the byte size of the per-plane uniform buffer.
// Layout: weight (f32) + padding = 16 bytes, matching PlaneParams in
// stencil_rebuild.wgsl.
const planeUniformSize = 16

// rebuildVertexStride is the byte stride per vertex in the rebuild pipeline.
// Layout per vertex: position (vec2<f32>) + tex_coord (vec2<f32>) = 16 bytes.
const rebuildVertexStride = 16

// pipelineKey identifies one rebuild pipeline variant. Stencil write masks
// and color write masks are static pipeline state, so every combination the
// reconstruction needs gets its own pipeline: at most thirteen distinct
// stencil masks (8 single bits, 4 doubled nibbles, 0xFF), each in a
// with-alpha and a stencil-only flavor.
type pipelineKey struct {
	// stencilMask is the stencil write mask baked into the pipeline.
	stencilMask uint8

	// writeAlpha selects the color write mask: alpha-only for the
	// reconstruction draws, none for the stencil-replay draws of the
	// scaled blit (the destination's alpha is already correct there).
	writeAlpha bool
}

// program holds the shared GPU objects of the reconstruction: shader
// modules, the bind group layout (uniform + texture + sampler), the
// pipeline layout, the nearest sampler, and the lazily filled pipeline
// cache. One program serves all targets of a Device.
type program struct {
	device hal.Device

	rebuildShader hal.ShaderModule
	clearShader   hal.ShaderModule
	bindLayout    hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	sampler       hal.Sampler

	// pipelines caches rebuild pipeline variants by write-mask key.
	pipelines map[pipelineKey]hal.RenderPipeline

	// clearPipeline is the alpha-clear pipeline for the direct clear path.
	clearPipeline hal.RenderPipeline
}

// newProgram compiles both shaders and creates the shared layouts and
// sampler. Pipelines are created on first use per write mask.
func newProgram(device hal.Device) (*program, error) {
	p := &program{
		device:    device,
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
	}
	if err := p.create(); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

func (p *program) create() error {
	rebuildShader, err := createShaderModule(p.device, "stencil_rebuild_shader", stencilRebuildShaderSource)
	if err != nil {
		return fmt.Errorf("compile stencil rebuild shader: %w", err)
	}
	p.rebuildShader = rebuildShader

	clearShader, err := createShaderModule(p.device, "alpha_clear_shader", alphaClearShaderSource)
	if err != nil {
		return fmt.Errorf("compile alpha clear shader: %w", err)
	}
	p.clearShader = clearShader

	// Bind group layout:
	//   Binding 0: PlaneParams (uniform buffer, fragment)
	//   Binding 1: expanded source texture (texture_2d, fragment)
	//   Binding 2: nearest sampler (fragment)
	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "stencil_rebuild_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create rebuild bind group layout: %w", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "stencil_rebuild_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create rebuild pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	// Nearest sampler: stencil bits must never be interpolated.
	sampler, err := p.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "stencil_rebuild_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return fmt.Errorf("create rebuild sampler: %w", err)
	}
	p.sampler = sampler

	return nil
}

// rebuildPipeline returns the cached pipeline for the given key, creating
// it on first use. Stencil state is Always/Replace on every op with the
// key's write mask; the reference value 0xFF is set on the render pass, so
// a passing fragment replaces its masked bits with ones.
func (p *program) rebuildPipeline(key pipelineKey) (hal.RenderPipeline, error) {
	if pipe, ok := p.pipelines[key]; ok {
		return pipe, nil
	}

	colorMask := gputypes.ColorWriteMaskAlpha
	if !key.writeAlpha {
		colorMask = gputypes.ColorWriteMaskNone
	}

	pipe, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("stencil_rebuild_pipeline_%02x", key.stencilMask),
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.rebuildShader,
			EntryPoint: "vs_main",
			Buffers:    rebuildVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.rebuildShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatRGBA8Unorm,
					WriteMask: colorMask,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationReplace,
				DepthFailOp: hal.StencilOperationReplace,
				PassOp:      hal.StencilOperationReplace,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationReplace,
				DepthFailOp: hal.StencilOperationReplace,
				PassOp:      hal.StencilOperationReplace,
			},
			StencilReadMask:  0xFF,
			StencilWriteMask: uint32(key.stencilMask),
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create rebuild pipeline (mask %02x): %w", key.stencilMask, err)
	}
	p.pipelines[key] = pipe
	return pipe, nil
}

// ensureClearPipeline creates the alpha-clear pipeline on first use. It
// draws one oversized triangle with no vertex buffer and writes zero to the
// alpha channel only; the stencil plane is cleared by the pass load op.
func (p *program) ensureClearPipeline() (hal.RenderPipeline, error) {
	if p.clearPipeline != nil {
		return p.clearPipeline, nil
	}

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "alpha_clear_pipe_layout",
		BindGroupLayouts: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("create alpha clear pipeline layout: %w", err)
	}
	defer p.device.DestroyPipelineLayout(pipeLayout)

	pipe, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "alpha_clear_pipeline",
		Layout: pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.clearShader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     p.clearShader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatRGBA8Unorm,
					WriteMask: gputypes.ColorWriteMaskAlpha,
				},
			},
		},
		DepthStencil: &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: false,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilReadMask:  0x00,
			StencilWriteMask: 0x00,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create alpha clear pipeline: %w", err)
	}
	p.clearPipeline = pipe
	return pipe, nil
}

// destroy releases all program resources in reverse creation order. Safe to
// call on a partially created program.
func (p *program) destroy() {
	if p.device == nil {
		return
	}
	if p.clearPipeline != nil {
		p.device.DestroyRenderPipeline(p.clearPipeline)
		p.clearPipeline = nil
	}
	for key, pipe := range p.pipelines {
		p.device.DestroyRenderPipeline(pipe)
		delete(p.pipelines, key)
	}
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.clearShader != nil {
		p.device.DestroyShaderModule(p.clearShader)
		p.clearShader = nil
	}
	if p.rebuildShader != nil {
		p.device.DestroyShaderModule(p.rebuildShader)
		p.rebuildShader = nil
	}
}

// rebuildVertexLayout returns the vertex buffer layout for the rebuild
// pipeline. Matches VertexInput in stencil_rebuild.wgsl:
//
//	location 0: position (vec2<f32>)
//	location 1: tex_coord (vec2<f32>)
func rebuildVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: rebuildVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1}, // tex_coord
			},
		},
	}
}
