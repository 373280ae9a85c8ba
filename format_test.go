package restencil

import "testing"

func TestPixelFormatProperties(t *testing.T) {
	tests := []struct {
		format      PixelFormat
		name        string
		bpp         int
		stencilBits int
		valueCount  int
		hasStencil  bool
	}{
		{RGB565, "565", 2, 0, 0, false},
		{RGBA5551, "5551", 2, 1, 2, true},
		{RGBA4444, "4444", 2, 4, 16, true},
		{RGBA8888, "8888", 4, 8, 256, true},
		{FormatInvalid, "invalid", 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.format.BytesPerPixel(); got != tt.bpp {
				t.Errorf("BytesPerPixel() = %d, want %d", got, tt.bpp)
			}
			if got := tt.format.StencilBits(); got != tt.stencilBits {
				t.Errorf("StencilBits() = %d, want %d", got, tt.stencilBits)
			}
			if got := tt.format.ValueCount(); got != tt.valueCount {
				t.Errorf("ValueCount() = %d, want %d", got, tt.valueCount)
			}
			if got := tt.format.HasStencil(); got != tt.hasStencil {
				t.Errorf("HasStencil() = %v, want %v", got, tt.hasStencil)
			}
		})
	}
}

func TestPixelFormatStringUnknown(t *testing.T) {
	f := PixelFormat(99)
	if got := f.String(); got != "Unknown(99)" {
		t.Errorf("String() = %q, want %q", got, "Unknown(99)")
	}
}
