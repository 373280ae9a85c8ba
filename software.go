package restencil

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// SoftwareDevice is a CPU implementation of the Device contract. Targets are
// plain byte planes (an 8-bit stencil byte per pixel plus interleaved RGBA
// color), plane draws are rasterized with nearest-neighbor sampling, and the
// discard rule uses the exact round-then-scale quantization of the GPU
// program, so its output is bit-identical to the hardware path. It serves as
// the headless fallback and as the reference device in tests.
//
// SoftwareDevice is not safe for concurrent use.
type SoftwareDevice struct {
	bound  *softBacking
	vw, vh int

	// Source texture state from the last UploadSource, alpha bytes only.
	srcAlpha []uint8
	srcW     int
	srcH     int

	// Temporary target pool, keyed by exact size. Entries return to the
	// pool when Finish ends the sequence that acquired them.
	pool  []*RenderTarget
	inUse []*RenderTarget
}

var _ Device = (*SoftwareDevice)(nil)

// NewSoftwareDevice returns a device with no allocated targets.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{}
}

// softBacking is the CPU storage of one target.
type softBacking struct {
	w, h    int
	stencil []uint8
	color   []uint8 // interleaved RGBA
}

func (b *softBacking) Discard() {
	b.stencil = nil
	b.color = nil
	b.w, b.h = 0, 0
}

// materialize attaches CPU storage at t's render resolution if it has none.
func (d *SoftwareDevice) materialize(t *RenderTarget) *softBacking {
	if b, ok := t.Backing.(*softBacking); ok && b.stencil != nil {
		return b
	}
	b := &softBacking{
		w:       t.RenderWidth,
		h:       t.RenderHeight,
		stencil: make([]uint8, t.RenderWidth*t.RenderHeight),
		color:   make([]uint8, t.RenderWidth*t.RenderHeight*4),
	}
	t.Backing = b
	return b
}

// EnsureProgram always succeeds: the software "program" is compiled in.
func (d *SoftwareDevice) EnsureProgram() error { return nil }

// AcquireTemporary returns a pooled off-screen target of exactly the given
// size, creating one on first use.
func (d *SoftwareDevice) AcquireTemporary(width, height int) *RenderTarget {
	for i, t := range d.pool {
		if t.RenderWidth == width && t.RenderHeight == height {
			d.pool = append(d.pool[:i], d.pool[i+1:]...)
			d.inUse = append(d.inUse, t)
			return t
		}
	}
	t := &RenderTarget{
		Width: width, Height: height,
		BufferWidth: width, BufferHeight: height,
		RenderWidth: width, RenderHeight: height,
	}
	d.materialize(t)
	d.inUse = append(d.inUse, t)
	return t
}

// BeginTarget binds t for the following clear and plane draws.
func (d *SoftwareDevice) BeginTarget(t *RenderTarget, width, height int) {
	d.bound = d.materialize(t)
	d.vw, d.vh = width, height
}

// UploadSource expands the packed pixels' stencil bits into one alpha byte
// per pixel. The software texture is never padded, so the UV extent is
// always the full (1, 1).
func (d *SoftwareDevice) UploadSource(pixels []byte, format PixelFormat, stride, width, height int) (u1, v1 float32) {
	if cap(d.srcAlpha) < width*height {
		d.srcAlpha = make([]uint8, width*height)
	}
	d.srcAlpha = d.srcAlpha[:width*height]
	d.srcW, d.srcH = width, height

	bpp := format.BytesPerPixel()
	for y := 0; y < height; y++ {
		row := pixels[y*stride*bpp:]
		for x := 0; x < width; x++ {
			d.srcAlpha[y*width+x] = PixelAlpha(format, row[x*bpp:])
		}
	}
	return 1, 1
}

// PixelAlpha expands one packed pixel's stencil bits into the 8-bit alpha
// domain: the 5551 bit becomes 0x00/0xFF, a 4444 nibble n becomes n*17
// (the nibble replicated into both halves), and the 8888 alpha byte passes
// through unchanged.
func PixelAlpha(format PixelFormat, pixel []byte) uint8 {
	switch format {
	case RGBA5551:
		if pixel[1]&0x80 != 0 {
			return 0xFF
		}
		return 0
	case RGBA4444:
		n := pixel[1] >> 4
		return n<<4 | n
	case RGBA8888:
		return pixel[3]
	default:
		return 0
	}
}

// ClearStencil zeroes the bound target's stencil plane.
func (d *SoftwareDevice) ClearStencil() {
	if d.bound != nil {
		clear(d.bound.stencil)
	}
}

// quantize255 re-quantizes a normalized sample into the 8-bit integer
// domain. Rounding must happen before the plane division or values at the
// 2/16/256 boundaries drift across it.
func quantize255(x float64) float64 {
	return math.Floor(x * 255.99)
}

// DrawPlane rasterizes one masked reconstruction draw over the bound
// target: for every covered pixel whose quantized sample carries the
// plane's bit, replace the masked stencil bits with 0xFF and the color
// alpha with the sampled alpha. Discarded pixels are left untouched.
func (d *SoftwareDevice) DrawPlane(plane BitPlane, q Quad) {
	b := d.bound
	if b == nil || d.srcW == 0 {
		return
	}
	qw := quantize255(float64(plane.Weight))
	if qw == 0 {
		return
	}

	// Quad rectangle in viewport pixels.
	sx0 := float64(q.X) / float64(q.TexW) * float64(d.vw)
	sx1 := float64(q.X+q.W) / float64(q.TexW) * float64(d.vw)
	sy0 := float64(q.Y) / float64(q.TexH) * float64(d.vh)
	sy1 := float64(q.Y+q.H) / float64(q.TexH) * float64(d.vh)

	px0, px1 := clampRange(sx0, sx1, d.vw)
	py0, py1 := clampRange(sy0, sy1, d.vh)

	// The payload occupies [U0,U1]x[V0,V1] of the texture, so the padded
	// texture size is the payload size divided by the extent.
	texW := float64(d.srcW) / float64(q.U1-q.U0)
	texH := float64(d.srcH) / float64(q.V1-q.V0)

	for py := py0; py < py1; py++ {
		tv := (float64(py) + 0.5 - sy0) / (sy1 - sy0)
		v := float64(q.V0) + tv*float64(q.V1-q.V0)
		sy := clampIndex(int(v*texH), d.srcH)
		for px := px0; px < px1; px++ {
			tu := (float64(px) + 0.5 - sx0) / (sx1 - sx0)
			u := float64(q.U0) + tu*float64(q.U1-q.U0)
			sx := clampIndex(int(u*texW), d.srcW)

			a := d.srcAlpha[sy*d.srcW+sx]
			shifted := quantize255(float64(a)/255.0) / qw
			if math.Mod(math.Floor(shifted), 2.0) < 0.99 {
				continue // plane bit not set at this pixel
			}
			idx := py*b.w + px
			b.stencil[idx] = b.stencil[idx]&^plane.WriteMask | 0xFF&plane.WriteMask
			b.color[idx*4+3] = a
		}
	}
}

// BlitStencil stretches src's stencil plane over dst's with
// nearest-neighbor filtering. Only the stencil plane moves; dst's color
// (including its alpha channel) is left alone.
func (d *SoftwareDevice) BlitStencil(src, dst *RenderTarget) {
	sb, ok := src.Backing.(*softBacking)
	if !ok || sb.stencil == nil {
		return
	}
	db := d.materialize(dst)

	srcImg := &image.Gray{
		Pix:    sb.stencil,
		Stride: sb.w,
		Rect:   image.Rect(0, 0, sb.w, sb.h),
	}
	dstImg := &image.Gray{
		Pix:    db.stencil,
		Stride: db.w,
		Rect:   image.Rect(0, 0, db.w, db.h),
	}
	draw.NearestNeighbor.Scale(dstImg, dstImg.Rect, srcImg, srcImg.Rect, draw.Src, nil)
}

// ClearStencilAndAlpha zeroes t's stencil plane and color alpha channel.
// RGB bytes are never written.
func (d *SoftwareDevice) ClearStencilAndAlpha(t *RenderTarget) {
	b := d.materialize(t)
	clear(b.stencil)
	for i := 3; i < len(b.color); i += 4 {
		b.color[i] = 0
	}
}

// Finish releases held temporaries back to the pool and unbinds the target.
func (d *SoftwareDevice) Finish() {
	d.pool = append(d.pool, d.inUse...)
	d.inUse = d.inUse[:0]
	d.bound = nil
	d.srcW, d.srcH = 0, 0
}

// StencilPlane returns t's live stencil bytes, row-major at render
// resolution, or nil if the target has no backing. For readback in tests
// and debugging; treat as read-only.
func (d *SoftwareDevice) StencilPlane(t *RenderTarget) []uint8 {
	if b, ok := t.Backing.(*softBacking); ok {
		return b.stencil
	}
	return nil
}

// Color returns t's live interleaved RGBA bytes, or nil if the target has
// no backing.
func (d *SoftwareDevice) Color(t *RenderTarget) []uint8 {
	if b, ok := t.Backing.(*softBacking); ok {
		return b.color
	}
	return nil
}

// clampRange converts a half-open pixel-center interval to clamped indices.
func clampRange(lo, hi float64, limit int) (int, int) {
	a := int(math.Ceil(lo - 0.5))
	z := int(math.Ceil(hi - 0.5))
	if a < 0 {
		a = 0
	}
	if z > limit {
		z = limit
	}
	return a, z
}

func clampIndex(i, limit int) int {
	if i < 0 {
		return 0
	}
	if i >= limit {
		return limit - 1
	}
	return i
}
