package restencil

import (
	"bytes"
	"testing"
)

func TestPixelAlpha(t *testing.T) {
	tests := []struct {
		name   string
		format PixelFormat
		pixel  []byte
		want   uint8
	}{
		{"5551 bit set", RGBA5551, []byte{0x00, 0x80}, 0xFF},
		{"5551 bit clear", RGBA5551, []byte{0xFF, 0x7F}, 0x00},
		{"4444 nibble A", RGBA4444, []byte{0x00, 0xA0}, 0xAA},
		{"4444 nibble 1", RGBA4444, []byte{0xFF, 0x1F}, 0x11},
		{"4444 nibble 0", RGBA4444, []byte{0xFF, 0x0F}, 0x00},
		{"8888 alpha byte", RGBA8888, []byte{0x12, 0x34, 0x56, 0x78}, 0x78},
		{"565 no stencil", RGB565, []byte{0xFF, 0xFF}, 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PixelAlpha(tt.format, tt.pixel); got != tt.want {
				t.Errorf("PixelAlpha() = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}

func TestSoftwareDeviceDrawPlane(t *testing.T) {
	dev := NewSoftwareDevice()
	tgt := &RenderTarget{
		Width: 4, Height: 1,
		BufferWidth: 4, BufferHeight: 1,
		RenderWidth: 4, RenderHeight: 1,
	}

	// 8888 pixels with alphas 0, 1, 2, 3.
	pixels := pack32(0x00000000, 0x01000000, 0x02000000, 0x03000000)

	dev.BeginTarget(tgt, 4, 1)
	u1, v1 := dev.UploadSource(pixels, RGBA8888, 4, 4, 1)
	if u1 != 1 || v1 != 1 {
		t.Fatalf("UploadSource UV = (%v, %v), want (1, 1)", u1, v1)
	}
	dev.ClearStencil()

	q := Quad{X: 0, Y: 0, W: 4, H: 1, TexW: 4, TexH: 1, U0: 0, V0: 0, U1: 1, V1: 1}
	dev.DrawPlane(BitPlane{WriteMask: 0x01, Weight: 1.0 / 255.0}, q)
	dev.DrawPlane(BitPlane{WriteMask: 0x02, Weight: 2.0 / 255.0}, q)
	dev.Finish()

	want := []uint8{0x00, 0x01, 0x02, 0x03}
	if got := dev.StencilPlane(tgt); !bytes.Equal(got, want) {
		t.Errorf("stencil = %v, want %v", got, want)
	}

	// Color alpha mirrors the sampled value where any plane landed.
	color := dev.Color(tgt)
	for i, wantA := range []uint8{0x00, 0x01, 0x02, 0x03} {
		if i == 0 {
			continue // all planes discarded, alpha untouched
		}
		if got := color[i*4+3]; got != wantA {
			t.Errorf("pixel %d alpha = %#02x, want %#02x", i, got, wantA)
		}
	}
}

func TestSoftwareDeviceQuadCoversLogicalWidthOnly(t *testing.T) {
	dev := NewSoftwareDevice()
	tgt := &RenderTarget{
		Width: 2, Height: 1,
		BufferWidth: 4, BufferHeight: 1,
		RenderWidth: 4, RenderHeight: 1,
	}

	// All four buffer pixels carry the bit; the quad stops at the logical
	// width, so the stride padding region must stay clear.
	pixels := pack32(0xFF000000, 0xFF000000, 0xFF000000, 0xFF000000)

	dev.BeginTarget(tgt, 4, 1)
	dev.UploadSource(pixels, RGBA8888, 4, 4, 1)
	dev.ClearStencil()
	q := Quad{X: 0, Y: 0, W: 2, H: 1, TexW: 4, TexH: 1, U0: 0, V0: 0, U1: 1, V1: 1}
	dev.DrawPlane(BitPlane{WriteMask: 0x01, Weight: 1.0 / 255.0}, q)
	dev.Finish()

	got := dev.StencilPlane(tgt)
	if got[0]&0x01 == 0 || got[1]&0x01 == 0 {
		t.Errorf("pixels inside the quad not written: %v", got)
	}
	if got[2] != 0 || got[3] != 0 {
		t.Errorf("stride padding written: %v", got)
	}
}

func TestSoftwareDeviceClearStencilAndAlpha(t *testing.T) {
	dev := NewSoftwareDevice()
	tgt := &RenderTarget{
		Width: 2, Height: 2,
		BufferWidth: 2, BufferHeight: 2,
		RenderWidth: 2, RenderHeight: 2,
	}

	dev.ClearStencilAndAlpha(tgt) // materializes
	stencil := dev.StencilPlane(tgt)
	color := dev.Color(tgt)
	for i := range stencil {
		stencil[i] = 0xFF
	}
	for i := range color {
		color[i] = 0xCC
	}

	dev.ClearStencilAndAlpha(tgt)

	for i, s := range stencil {
		if s != 0 {
			t.Errorf("stencil[%d] = %#02x, want 0", i, s)
		}
	}
	for i := 0; i < len(color); i += 4 {
		if color[i] != 0xCC || color[i+1] != 0xCC || color[i+2] != 0xCC {
			t.Errorf("pixel %d RGB modified: %v", i/4, color[i:i+3])
		}
		if color[i+3] != 0 {
			t.Errorf("pixel %d alpha = %#02x, want 0", i/4, color[i+3])
		}
	}
}

func TestSoftwareDeviceBlitStencilNearest(t *testing.T) {
	dev := NewSoftwareDevice()

	src := dev.AcquireTemporary(2, 1)
	copy(dev.StencilPlane(src), []uint8{0xAA, 0x55})

	dst := &RenderTarget{
		Width: 2, Height: 1,
		BufferWidth: 2, BufferHeight: 1,
		RenderWidth: 4, RenderHeight: 2,
	}
	dev.BlitStencil(src, dst)
	dev.Finish()

	want := []uint8{
		0xAA, 0xAA, 0x55, 0x55,
		0xAA, 0xAA, 0x55, 0x55,
	}
	if got := dev.StencilPlane(dst); !bytes.Equal(got, want) {
		t.Errorf("blitted stencil = %v, want %v", got, want)
	}
}

func TestSoftwareDeviceTemporaryPool(t *testing.T) {
	dev := NewSoftwareDevice()

	t1 := dev.AcquireTemporary(8, 4)
	dev.Finish()
	t2 := dev.AcquireTemporary(8, 4)
	if t1 != t2 {
		t.Error("same-size temporary not reused after Finish")
	}

	t3 := dev.AcquireTemporary(16, 8)
	if t3 == t2 {
		t.Error("different-size request returned the held temporary")
	}
	dev.Finish()
}
