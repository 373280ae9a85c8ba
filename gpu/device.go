//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/emugfx/restencil"
)

// stencilReference is the value Replace writes into the masked stencil
// bits. Every plane draw sets full ones through its write mask.
const stencilReference = 0xFF

// gpuWaitTimeout bounds the fence wait after a submit.
const gpuWaitTimeout = 5 * time.Second

// Device implements the restencil.Device contract over a gogpu/wgpu HAL
// device. Calls between BeginTarget and Finish are recorded and encoded as
// one command submission at Finish: a render pass of masked plane draws on
// the bound target, plus a second replay pass on the final target when a
// scaled stencil transfer was requested.
//
// Device is not safe for concurrent use; it expects to live on the thread
// that owns the HAL device, like every other renderer in this stack.
type Device struct {
	device hal.Device
	queue  hal.Queue

	prog    *program
	progErr error

	pool tempPool

	// Recording state for the current upload sequence.
	bound        *restencil.RenderTarget
	vw, vh       int
	clearPending bool
	srcTex       hal.Texture
	srcView      hal.TextureView
	draws        []planeDraw
	blitSrc      *restencil.RenderTarget
	blitDst      *restencil.RenderTarget
}

var _ restencil.Device = (*Device)(nil)

// planeDraw is one recorded masked draw.
type planeDraw struct {
	plane restencil.BitPlane
	quad  restencil.Quad
}

// New wraps a HAL device and queue. The reconstruction program is not
// built until EnsureProgram is called.
func New(device hal.Device, queue hal.Queue) *Device {
	return &Device{
		device: device,
		queue:  queue,
	}
}

// Destroy releases the program, pooled targets, and any recording state.
// Safe to call multiple times.
func (d *Device) Destroy() {
	d.reset()
	d.pool.destroy()
	if d.prog != nil {
		d.prog.destroy()
		d.prog = nil
	}
	d.progErr = nil
}

// targetBacking is the device-side storage of one render target: a color
// texture whose alpha channel mirrors the stencil byte, and a combined
// depth/stencil texture holding the plane itself.
type targetBacking struct {
	device hal.Device

	colorTex  hal.Texture
	colorView hal.TextureView
	depthTex  hal.Texture
	depthView hal.TextureView

	width, height int
}

// Discard releases the textures in reverse creation order. Safe to call on
// a partially created backing.
func (b *targetBacking) Discard() {
	if b.device == nil {
		return
	}
	if b.depthView != nil {
		b.device.DestroyTextureView(b.depthView)
		b.depthView = nil
	}
	if b.depthTex != nil {
		b.device.DestroyTexture(b.depthTex)
		b.depthTex = nil
	}
	if b.colorView != nil {
		b.device.DestroyTextureView(b.colorView)
		b.colorView = nil
	}
	if b.colorTex != nil {
		b.device.DestroyTexture(b.colorTex)
		b.colorTex = nil
	}
}

// materialize attaches GPU textures at t's render resolution if it has no
// backing yet.
func (d *Device) materialize(t *restencil.RenderTarget) (*targetBacking, error) {
	if b, ok := t.Backing.(*targetBacking); ok && b.colorTex != nil {
		return b, nil
	}

	b := &targetBacking{
		device: d.device,
		width:  t.RenderWidth,
		height: t.RenderHeight,
	}
	size := hal.Extent3D{
		Width:              uint32(t.RenderWidth),  //nolint:gosec // render sizes fit uint32
		Height:             uint32(t.RenderHeight), //nolint:gosec // render sizes fit uint32
		DepthOrArrayLayers: 1,
	}

	colorTex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "restencil_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create color texture: %w", err)
	}
	b.colorTex = colorTex

	colorView, err := d.device.CreateTextureView(colorTex, &hal.TextureViewDescriptor{
		Label: "restencil_color_view",
	})
	if err != nil {
		b.Discard()
		return nil, fmt.Errorf("create color view: %w", err)
	}
	b.colorView = colorView

	depthTex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "restencil_depth_stencil",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24PlusStencil8,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		b.Discard()
		return nil, fmt.Errorf("create depth/stencil texture: %w", err)
	}
	b.depthTex = depthTex

	depthView, err := d.device.CreateTextureView(depthTex, &hal.TextureViewDescriptor{
		Label: "restencil_depth_stencil_view",
	})
	if err != nil {
		b.Discard()
		return nil, fmt.Errorf("create depth/stencil view: %w", err)
	}
	b.depthView = depthView

	t.Backing = b
	return b, nil
}

// EnsureProgram builds the shaders, layouts, and sampler on first use. A
// failed build is sticky: the error is returned unchanged on every later
// call until the device is recreated.
func (d *Device) EnsureProgram() error {
	if d.prog != nil {
		return nil
	}
	if d.progErr != nil {
		return d.progErr
	}
	prog, err := newProgram(d.device)
	if err != nil {
		d.progErr = err
		return err
	}
	d.prog = prog
	return nil
}

// AcquireTemporary returns a pooled off-screen target of exactly the given
// size. The target stays with the device until Finish.
func (d *Device) AcquireTemporary(width, height int) *restencil.RenderTarget {
	return d.pool.acquire(d, width, height)
}

// BeginTarget binds t for the following clear and plane draws.
func (d *Device) BeginTarget(t *restencil.RenderTarget, width, height int) {
	if _, err := d.materialize(t); err != nil {
		restencil.Logger().Error("stencil target backing failed", "err", err)
		d.bound = nil
		return
	}
	d.bound = t
	d.vw, d.vh = width, height
}

// UploadSource expands the packed pixels' stencil bits into the alpha
// channel of an RGBA8 texture and uploads it for the following plane draws.
// The texture is allocated at exactly width x height, so the UV extent is
// the full (1, 1).
func (d *Device) UploadSource(pixels []byte, format restencil.PixelFormat, stride, width, height int) (u1, v1 float32) {
	rgba := make([]byte, width*height*4)
	bpp := format.BytesPerPixel()
	for y := 0; y < height; y++ {
		row := pixels[y*stride*bpp:]
		for x := 0; x < width; x++ {
			rgba[(y*width+x)*4+3] = restencil.PixelAlpha(format, row[x*bpp:])
		}
	}

	w, h := uint32(width), uint32(height) //nolint:gosec // buffer sizes fit uint32
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "restencil_source",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		restencil.Logger().Error("stencil source texture failed", "err", err)
		return 1, 1
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "restencil_source_view",
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		restencil.Logger().Error("stencil source view failed", "err", err)
		return 1, 1
	}

	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex, MipLevel: 0},
		rgba,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * 4, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)

	d.srcTex = tex
	d.srcView = view
	return 1, 1
}

// ClearStencil schedules a stencil clear to zero at the start of the
// rebuild pass.
func (d *Device) ClearStencil() {
	d.clearPending = true
}

// DrawPlane records one masked reconstruction draw for the rebuild pass.
func (d *Device) DrawPlane(plane restencil.BitPlane, q restencil.Quad) {
	d.draws = append(d.draws, planeDraw{plane: plane, quad: q})
}

// BlitStencil schedules a scaled stencil transfer from src to dst. The
// stencil plane of a texture cannot be sampled or stretched here, so Finish
// re-expresses the transfer as a replay pass on dst: the temporary's color
// alpha holds the reconstructed stencil byte, and per-bit masked draws
// sampling it with nearest filtering rebuild the plane at full resolution.
// Only the stencil plane is written; dst's alpha is already correct at its
// own resolution.
func (d *Device) BlitStencil(src, dst *restencil.RenderTarget) {
	d.blitSrc = src
	d.blitDst = dst
}

// ClearStencilAndAlpha zeroes t's stencil plane and color alpha channel
// with a single immediate pass: the stencil clears through the pass load
// op, the alpha through the alpha-clear pipeline. RGB is never written.
func (d *Device) ClearStencilAndAlpha(t *restencil.RenderTarget) {
	if err := d.EnsureProgram(); err != nil {
		restencil.Logger().Error("stencil clear skipped, program unavailable", "err", err)
		return
	}
	pipe, err := d.prog.ensureClearPipeline()
	if err != nil {
		restencil.Logger().Error("alpha clear pipeline failed", "err", err)
		return
	}
	backing, err := d.materialize(t)
	if err != nil {
		restencil.Logger().Error("stencil clear target backing failed", "err", err)
		return
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "restencil_clear_encoder",
	})
	if err != nil {
		restencil.Logger().Error("create clear encoder failed", "err", err)
		return
	}
	if err := encoder.BeginEncoding("restencil_clear"); err != nil {
		restencil.Logger().Error("begin clear encoding failed", "err", err)
		return
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "restencil_clear_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    backing.colorView,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              backing.depthView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		},
	})
	rp.SetPipeline(pipe)
	rp.Draw(3, 1, 0, 0)
	rp.End()

	d.submitAndWait(encoder)
}

// Finish encodes the recorded sequence as one submission and blocks until
// the GPU is done, so the caller may reuse the source memory immediately.
func (d *Device) Finish() {
	defer d.reset()

	if d.bound == nil || d.prog == nil || d.srcView == nil {
		return
	}
	if len(d.draws) == 0 && !d.clearPending {
		return
	}

	backing, ok := d.bound.Backing.(*targetBacking)
	if !ok {
		return
	}

	// Resolve every pipeline before encoding starts.
	rebuildPipes := make([]hal.RenderPipeline, len(d.draws))
	for i, draw := range d.draws {
		pipe, err := d.prog.rebuildPipeline(pipelineKey{stencilMask: draw.plane.WriteMask, writeAlpha: true})
		if err != nil {
			restencil.Logger().Error("rebuild pipeline failed", "err", err)
			return
		}
		rebuildPipes[i] = pipe
	}

	var replayPlanes []restencil.BitPlane
	var replayPipes []hal.RenderPipeline
	var dstBacking *targetBacking
	if d.blitDst != nil {
		var expanded uint8
		for _, draw := range d.draws {
			expanded |= draw.plane.WriteMask
		}
		replayPlanes = restencil.Planes(restencil.RGBA8888, expanded)
		replayPipes = make([]hal.RenderPipeline, len(replayPlanes))
		for i, plane := range replayPlanes {
			pipe, err := d.prog.rebuildPipeline(pipelineKey{stencilMask: plane.WriteMask, writeAlpha: false})
			if err != nil {
				restencil.Logger().Error("replay pipeline failed", "err", err)
				return
			}
			replayPipes[i] = pipe
		}
		var err error
		dstBacking, err = d.materialize(d.blitDst)
		if err != nil {
			restencil.Logger().Error("blit destination backing failed", "err", err)
			return
		}
	}

	// One shared vertex buffer: six vertices per recorded draw, plus one
	// full-target quad for the replay pass.
	var vertexData []byte
	for _, draw := range d.draws {
		vertexData = append(vertexData, quadVertices(draw.quad)...)
	}
	var replayFirstVertex uint32
	if d.blitDst != nil {
		replayFirstVertex = uint32(len(d.draws) * 6) //nolint:gosec // draw count is at most 8
		vertexData = append(vertexData, quadVertices(fullTargetQuad())...)
	}

	frame, err := d.buildFrameResources(vertexData, replayPlanes)
	if err != nil {
		restencil.Logger().Error("stencil frame resources failed", "err", err)
		return
	}
	defer frame.destroy(d.device)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "restencil_encoder",
	})
	if err != nil {
		restencil.Logger().Error("create encoder failed", "err", err)
		return
	}
	if err := encoder.BeginEncoding("restencil_rebuild"); err != nil {
		restencil.Logger().Error("begin encoding failed", "err", err)
		return
	}

	// Pass 1: masked plane draws on the bound target. The stencil clears
	// through the load op; the color load op depends on where the pass
	// renders (rebuildColorLoad).
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "restencil_rebuild_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       backing.colorView,
			LoadOp:     rebuildColorLoad(d.blitDst != nil),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              backing.depthView,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		},
	})
	rp.SetStencilReference(stencilReference)
	rp.SetVertexBuffer(0, frame.vertBuf, 0)
	for i := range d.draws {
		rp.SetPipeline(rebuildPipes[i])
		rp.SetBindGroup(0, frame.drawBinds[i], nil)
		rp.Draw(6, 1, uint32(i*6), 0) //nolint:gosec // draw count is at most 8
	}
	rp.End()

	// Pass 2: replay the planes at full resolution on the final target,
	// sampling the 1x temporary's color alpha.
	if d.blitDst != nil {
		rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "restencil_replay_pass",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:    dstBacking.colorView,
				LoadOp:  gputypes.LoadOpLoad,
				StoreOp: gputypes.StoreOpStore,
			}},
			DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
				View:              dstBacking.depthView,
				DepthLoadOp:       gputypes.LoadOpClear,
				DepthStoreOp:      gputypes.StoreOpDiscard,
				DepthClearValue:   1.0,
				StencilLoadOp:     gputypes.LoadOpClear,
				StencilStoreOp:    gputypes.StoreOpStore,
				StencilClearValue: 0,
			},
		})
		rp.SetStencilReference(stencilReference)
		rp.SetVertexBuffer(0, frame.vertBuf, 0)
		for i := range replayPlanes {
			rp.SetPipeline(replayPipes[i])
			rp.SetBindGroup(0, frame.replayBinds[i], nil)
			rp.Draw(6, 1, replayFirstVertex, 0)
		}
		rp.End()
	}

	d.submitAndWait(encoder)
}

// rebuildColorLoad selects the color load op for the rebuild pass. A final
// target keeps its RGB, so only load will do. A pooled temporary carries
// alpha from its previous use, and the replay pass reads that alpha as the
// stencil proxy: it must start from zero, or pixels whose plane draws all
// discard would replay stale bits into the destination.
func rebuildColorLoad(intoTemporary bool) gputypes.LoadOp {
	if intoTemporary {
		return gputypes.LoadOpClear
	}
	return gputypes.LoadOpLoad
}

// reset drops all recording state and returns pooled temporaries.
func (d *Device) reset() {
	if d.srcView != nil {
		d.device.DestroyTextureView(d.srcView)
		d.srcView = nil
	}
	if d.srcTex != nil {
		d.device.DestroyTexture(d.srcTex)
		d.srcTex = nil
	}
	d.draws = d.draws[:0]
	d.bound = nil
	d.clearPending = false
	d.blitSrc = nil
	d.blitDst = nil
	d.pool.release()
}

// submitAndWait finishes encoding, submits with a fence, and blocks until
// the GPU signals completion.
func (d *Device) submitAndWait(encoder hal.CommandEncoder) {
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		restencil.Logger().Error("end encoding failed", "err", err)
		return
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		restencil.Logger().Error("create fence failed", "err", err)
		return
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		restencil.Logger().Error("submit failed", "err", err)
		return
	}
	fenceOK, err := d.device.Wait(fence, 1, gpuWaitTimeout)
	if err != nil || !fenceOK {
		restencil.Logger().Error("wait for GPU failed", "ok", fenceOK, "err", err)
	}
}

// frameResources holds the per-submission GPU objects: the shared vertex
// buffer and one uniform buffer + bind group per draw.
type frameResources struct {
	vertBuf     hal.Buffer
	uniformBufs []hal.Buffer
	drawBinds   []hal.BindGroup
	replayBinds []hal.BindGroup
}

func (f *frameResources) destroy(device hal.Device) {
	for _, bg := range f.replayBinds {
		if bg != nil {
			device.DestroyBindGroup(bg)
		}
	}
	for _, bg := range f.drawBinds {
		if bg != nil {
			device.DestroyBindGroup(bg)
		}
	}
	for _, buf := range f.uniformBufs {
		if buf != nil {
			device.DestroyBuffer(buf)
		}
	}
	if f.vertBuf != nil {
		device.DestroyBuffer(f.vertBuf)
	}
}

// buildFrameResources uploads the vertex data and creates one uniform
// buffer + bind group per recorded draw and per replay plane.
func (d *Device) buildFrameResources(vertexData []byte, replayPlanes []restencil.BitPlane) (*frameResources, error) {
	frame := &frameResources{}

	vertBuf, err := d.createAndUploadBuffer("restencil_verts", vertexData,
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	frame.vertBuf = vertBuf

	for i, draw := range d.draws {
		bg, buf, err := d.createPlaneBind(fmt.Sprintf("restencil_plane_%d", i), draw.plane.Weight, d.srcView)
		if err != nil {
			frame.destroy(d.device)
			return nil, err
		}
		frame.uniformBufs = append(frame.uniformBufs, buf)
		frame.drawBinds = append(frame.drawBinds, bg)
	}

	if len(replayPlanes) > 0 {
		srcBacking, ok := d.blitSrc.Backing.(*targetBacking)
		if !ok {
			frame.destroy(d.device)
			return nil, fmt.Errorf("blit source has no GPU backing")
		}
		for i, plane := range replayPlanes {
			bg, buf, err := d.createPlaneBind(fmt.Sprintf("restencil_replay_%d", i), plane.Weight, srcBacking.colorView)
			if err != nil {
				frame.destroy(d.device)
				return nil, err
			}
			frame.uniformBufs = append(frame.uniformBufs, buf)
			frame.replayBinds = append(frame.replayBinds, bg)
		}
	}

	return frame, nil
}

// createPlaneBind creates the 16-byte weight uniform and its bind group
// over the given source texture view.
func (d *Device) createPlaneBind(label string, weight float32, view hal.TextureView) (hal.BindGroup, hal.Buffer, error) {
	uniform := make([]byte, planeUniformSize)
	binary.LittleEndian.PutUint32(uniform, math.Float32bits(weight))

	buf, err := d.createAndUploadBuffer(label+"_uniform", uniform,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, nil, err
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  label + "_bind",
		Layout: d.prog.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(), Offset: 0, Size: planeUniformSize,
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: view.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.SamplerBinding{
				Sampler: d.prog.sampler.NativeHandle(),
			}},
		},
	})
	if err != nil {
		d.device.DestroyBuffer(buf)
		return nil, nil, fmt.Errorf("create %s: %w", label, err)
	}
	return bg, buf, nil
}

// createAndUploadBuffer creates a GPU buffer and uploads data.
func (d *Device) createAndUploadBuffer(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	d.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// quadVertices serializes one quad as six clip-space vertices with UVs,
// 16 bytes each. The quad's rectangle is normalized by TexW/TexH, so a
// quad narrower than its coordinate space leaves the remaining viewport
// untouched, stride padding included.
func quadVertices(q restencil.Quad) []byte {
	x0 := q.X/q.TexW*2 - 1
	x1 := (q.X+q.W)/q.TexW*2 - 1
	y0 := 1 - q.Y/q.TexH*2
	y1 := 1 - (q.Y+q.H)/q.TexH*2

	verts := [6][4]float32{
		{x0, y0, q.U0, q.V0},
		{x0, y1, q.U0, q.V1},
		{x1, y1, q.U1, q.V1},
		{x0, y0, q.U0, q.V0},
		{x1, y1, q.U1, q.V1},
		{x1, y0, q.U1, q.V0},
	}

	data := make([]byte, 6*rebuildVertexStride)
	off := 0
	for _, v := range verts {
		for _, f := range v {
			binary.LittleEndian.PutUint32(data[off:], math.Float32bits(f))
			off += 4
		}
	}
	return data
}

// fullTargetQuad covers the whole viewport with the full texture.
func fullTargetQuad() restencil.Quad {
	return restencil.Quad{
		X: 0, Y: 0, W: 1, H: 1,
		TexW: 1, TexH: 1,
		U0: 0, V0: 0, U1: 1, V1: 1,
	}
}
