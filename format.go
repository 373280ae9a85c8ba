package restencil

import "fmt"

// PixelFormat identifies the packed-pixel layout of an emulated framebuffer.
// The stencil value lives in the otherwise-unused alpha bits of each pixel:
// the MSB for 5551, the top nibble for 4444, the whole top byte for 8888.
// 565 carries no stencil bits at all.
type PixelFormat uint8

const (
	// RGB565 is 16 bits per pixel with no alpha and no stencil bits.
	RGB565 PixelFormat = iota

	// RGBA5551 is 16 bits per pixel with a 1-bit stencil in bit 15.
	RGBA5551

	// RGBA4444 is 16 bits per pixel with a 4-bit stencil in bits 12-15.
	RGBA4444

	// RGBA8888 is 32 bits per pixel with an 8-bit stencil in bits 24-31.
	RGBA8888

	// FormatInvalid marks an unrecognized format.
	FormatInvalid
)

// String returns a human-readable name for the format.
func (f PixelFormat) String() string {
	switch f {
	case RGB565:
		return "565"
	case RGBA5551:
		return "5551"
	case RGBA4444:
		return "4444"
	case RGBA8888:
		return "8888"
	case FormatInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// BytesPerPixel returns the storage width of one packed pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGB565, RGBA5551, RGBA4444:
		return 2
	case RGBA8888:
		return 4
	default:
		return 0
	}
}

// StencilBits returns the number of stencil bits per pixel: 0, 1, 4 or 8.
func (f PixelFormat) StencilBits() int {
	switch f {
	case RGBA5551:
		return 1
	case RGBA4444:
		return 4
	case RGBA8888:
		return 8
	default:
		return 0
	}
}

// ValueCount returns one past the highest representable stencil value,
// i.e. 2^StencilBits: 2, 16 or 256. Formats without stencil bits return 0.
func (f PixelFormat) ValueCount() int {
	switch f {
	case RGBA5551:
		return 2
	case RGBA4444:
		return 16
	case RGBA8888:
		return 256
	default:
		return 0
	}
}

// HasStencil reports whether the format carries any stencil bits.
func (f PixelFormat) HasStencil() bool {
	return f.StencilBits() > 0
}
