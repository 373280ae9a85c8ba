package restencil

// Reconstructor rebuilds a tracked render target's stencil plane from the
// packed pixels the emulated program wrote into framebuffer memory.
//
// It is a best-effort synchronizer: Upload is called speculatively on memory
// writes, so every failure to resolve the destination is a silent no-op, not
// an error. The only state it keeps across calls is whether the device's
// program build has already been reported as failed.
type Reconstructor struct {
	registry *Registry
	mem      Memory
	dev      Device

	// compileFailureLogged keeps the reportable shader-compile diagnostic
	// to a single log line; every upload after a failed build degrades to
	// a no-op.
	compileFailureLogged bool
}

// NewReconstructor wires a reconstructor to its collaborators: the target
// registry that resolves addresses, the guest memory view, and the device
// that executes the draws.
func NewReconstructor(registry *Registry, mem Memory, dev Device) *Reconstructor {
	return &Reconstructor{registry: registry, mem: mem, dev: dev}
}

// Upload rebuilds the stencil plane of the target covering addr from its
// current framebuffer memory. It returns true if the target was modified
// and false for every kind of no-op: no tracked target at that address,
// unmapped memory, a format with no stencil bits, an all-zero source with
// skipIfZero set, or a device whose program failed to build.
//
// sizeHint is the byte length of the triggering write. The full target
// extent is scanned regardless, so the hint is accepted for interface
// compatibility with write notifications but not otherwise used.
//
// With skipIfZero set, an all-zero source is assumed to match an untouched
// target (freshly created targets start cleared) and the call returns
// early. Without it, an all-zero source still clears the stencil plane and
// the color alpha channel directly, skipping all shader work.
func (r *Reconstructor) Upload(addr uint32, sizeHint int, skipIfZero bool) bool {
	_ = sizeHint

	dst := r.registry.FindTargetCoveringAddress(addr)
	if dst == nil {
		return false
	}

	switch dst.Format {
	case RGBA5551, RGBA4444, RGBA8888:
	case RGB565:
		// No stencil bits to rebuild. A known mismatch, not a failure.
		return false
	default:
		return false
	}

	src := r.mem.ResolvePointer(addr)
	if src == nil {
		return false
	}

	numPixels := dst.Stride * dst.BufferHeight
	if len(src) < numPixels*dst.Format.BytesPerPixel() {
		// The mapping ends inside the target; treat like unmapped memory.
		Logger().Debug("stencil upload: mapping shorter than target extent",
			"addr", addr, "pixels", numPixels)
		return false
	}

	usedBits := UsedStencilBits(dst.Format, src, numPixels)
	if usedBits == 0 {
		if skipIfZero {
			// Common when creating buffers; it's already zero.
			return false
		}
		// Not worth the shader for an all-zero plane.
		r.dev.ClearStencilAndAlpha(dst)
		return true
	}

	if err := r.dev.EnsureProgram(); err != nil {
		if !r.compileFailureLogged {
			Logger().Error("stencil reconstruction program failed to build; uploads disabled",
				"err", err)
			r.compileFailureLogged = true
		}
		return false
	}

	// The fragment stage (and its discards) is slow. When the target is
	// upscaled and already has a backing, rebuild at 1x storage resolution
	// and stretch the stencil plane across afterwards; one nearest blit is
	// cheaper than shading the upscaled pixel count.
	useBlit := dst.Upscaled() && dst.Backing != nil
	w, h := dst.RenderWidth, dst.RenderHeight
	if useBlit {
		w, h = dst.BufferWidth, dst.BufferHeight
	}

	var tmp *RenderTarget
	if useBlit {
		tmp = r.dev.AcquireTemporary(w, h)
		r.dev.BeginTarget(tmp, w, h)
	} else {
		r.dev.BeginTarget(dst, w, h)
	}

	u1, v1 := r.dev.UploadSource(src, dst.Format, dst.Stride, dst.BufferWidth, dst.BufferHeight)
	r.dev.ClearStencil()

	q := Quad{
		X: 0, Y: 0,
		W: float32(dst.Width), H: float32(dst.Height),
		TexW: float32(dst.BufferWidth), TexH: float32(dst.BufferHeight),
		U0: 0, V0: 0, U1: u1, V1: v1,
	}
	for _, plane := range Planes(dst.Format, usedBits) {
		r.dev.DrawPlane(plane, q)
	}

	if useBlit {
		r.dev.BlitStencil(tmp, dst)
	}
	r.dev.Finish()
	return true
}
