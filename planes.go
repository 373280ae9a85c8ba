package restencil

// BitPlane describes one masked reconstruction draw: which bits of the host
// stencil byte the draw may touch, and the normalized comparison weight the
// fragment stage uses to decide whether a pixel carries this plane's bit.
//
// Keeping the loop as data ({write-mask, weight} pairs) decouples plane
// iteration from the drawing primitive: the reconstructor walks the slice
// and issues one draw per entry, nothing more.
type BitPlane struct {
	// WriteMask selects the destination stencil bits this plane occupies.
	// A 4-bit value lands in both nibbles ((i<<4)|i), a 1-bit value fills
	// the whole byte, an 8-bit value is the bit itself.
	WriteMask uint8

	// Weight is the plane's value scaled into the [0,1] domain the source
	// texture is sampled in. The shader re-quantizes both sides to the
	// 8-bit integer domain before comparing, so the exact float here only
	// needs to round back to the right integer.
	Weight float32
}

// Planes returns the reconstruction draws for the given format, restricted
// to planes present in usedBits. Order is ascending bit position; each draw
// affects only its own masked bits, so order does not change the result,
// but planes must stay separate draws: the discard condition differs per bit
// and a single pass cannot write different bit patterns per fragment.
//
// Weight scaling per format, with i the plane's value in the format's native
// domain:
//
//	5551: stencil bit is bit 15 → sampled alpha is 0 or 1.0, weight i·128/255
//	4444: stencil nibble is bits 12-15 → alpha quantum 17/255, weight i·16/255
//	8888: stencil byte is bits 24-31 → alpha quantum 1/255, weight i·1/255
func Planes(format PixelFormat, usedBits uint8) []BitPlane {
	values := format.ValueCount()
	if values == 0 || usedBits == 0 {
		return nil
	}

	planes := make([]BitPlane, 0, 8)
	for i := 1; i < values; i += i {
		if usedBits&uint8(i) == 0 {
			// Plane already zero everywhere, skip the draw.
			continue
		}
		var p BitPlane
		switch format {
		case RGBA4444:
			p = BitPlane{WriteMask: uint8(i<<4) | uint8(i), Weight: float32(i) * (16.0 / 255.0)}
		case RGBA5551:
			p = BitPlane{WriteMask: 0xFF, Weight: float32(i) * (128.0 / 255.0)}
		default: // RGBA8888
			p = BitPlane{WriteMask: uint8(i), Weight: float32(i) * (1.0 / 255.0)}
		}
		planes = append(planes, p)
	}
	return planes
}

// ExpandUsedBits maps a format-native used-bits mask into the host 8-bit
// stencil domain: the mask of bits that can be set in the final stencil
// byte. Used by devices that replay plane draws in the 8888 domain (the
// scaled stencil blit).
func ExpandUsedBits(format PixelFormat, usedBits uint8) uint8 {
	switch format {
	case RGBA5551:
		if usedBits != 0 {
			return 0xFF
		}
		return 0
	case RGBA4444:
		return usedBits<<4 | usedBits
	case RGBA8888:
		return usedBits
	default:
		return 0
	}
}
