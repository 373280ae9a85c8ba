package restencil

// Quad describes one full-target textured draw: a rectangle in the
// destination's logical coordinate space and the normalized UV extent of the
// bound source texture. TexW/TexH is the coordinate space the rectangle is
// expressed in (the storage size), so a quad of Width x Height inside
// TexW x TexH leaves the stride padding untouched, exactly like the
// original hardware upload.
type Quad struct {
	X, Y, W, H float32

	// TexW and TexH normalize X/Y/W/H into the viewport.
	TexW, TexH float32

	// U0,V0 - U1,V1 is the sampled region of the source texture. U1/V1 may
	// be below 1.0 when the texture was padded to allocation granularity.
	U0, V0, U1, V1 float32
}

// Device is the narrow GPU contract the reconstructor drives. One upload is
// a strict call sequence:
//
//	EnsureProgram
//	[AcquireTemporary]
//	BeginTarget
//	UploadSource
//	ClearStencil
//	DrawPlane ... DrawPlane
//	[BlitStencil]
//	Finish
//
// or, for an all-zero source, just ClearStencilAndAlpha. Calls between
// BeginTarget and Finish apply to the target passed to BeginTarget.
//
// Past EnsureProgram no call reports errors: draw submission is not expected
// to fail in normal operation, and implementations log rather than return.
// Every implementation must leave caller-visible GPU state as it found it
// once Finish returns; the only observable side effect of the sequence is
// the target's stencil plane (and its color alpha channel).
type Device interface {
	// EnsureProgram lazily builds the reconstruction program on first use
	// and reuses it afterwards. A failed build is sticky: every later call
	// returns the same error until the device is recreated, so callers
	// degrade to no-ops instead of recompiling (and re-failing) per upload.
	EnsureProgram() error

	// AcquireTemporary returns a pooled off-screen target of the given
	// size for the low-resolution render strategy. The device owns the
	// returned target and may hand it out again after the next Finish.
	AcquireTemporary(width, height int) *RenderTarget

	// BeginTarget directs subsequent calls at t with the given viewport,
	// materializing t.Backing if the target has none yet.
	BeginTarget(t *RenderTarget, width, height int)

	// UploadSource stores numPixels = stride*height packed pixels as the
	// source texture for the following plane draws, expanding the stencil
	// bits into the texture's alpha channel. It returns the normalized UV
	// extent of the payload, below 1.0 if the texture was padded.
	UploadSource(pixels []byte, format PixelFormat, stride, width, height int) (u1, v1 float32)

	// ClearStencil zeroes the bound target's stencil plane and nothing
	// else, as the baseline for the plane draws.
	ClearStencil()

	// DrawPlane issues one masked reconstruction draw: stencil write mask
	// set to plane.WriteMask, comparison weight plane.Weight, every
	// non-discarded fragment replacing its masked stencil bits with 0xFF
	// and its color alpha with the sampled alpha. RGB is never written.
	DrawPlane(plane BitPlane, q Quad)

	// BlitStencil copies only the stencil plane of src onto dst, scaling
	// with nearest-neighbor filtering. Stencil values are never
	// interpolated.
	BlitStencil(src, dst *RenderTarget)

	// ClearStencilAndAlpha zeroes t's stencil plane and color alpha
	// channel directly, without the program. RGB is untouched.
	ClearStencilAndAlpha(t *RenderTarget)

	// Finish submits any pending work, restores the previously bound
	// target and the stencil write mask, and ends the sequence.
	Finish()
}
