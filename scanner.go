package restencil

import "encoding/binary"

// Bit-plane scanning over raw packed-pixel memory.
//
// Each scan answers one question cheaply: which stencil bit positions are
// set anywhere in the region? A zero result is a whole-buffer guarantee that
// every plane is clear, which lets the reconstructor replace shader work
// with a plain clear. All scans process two 16-bit pixels per 32-bit word
// and never allocate.

// usedBits5551 reports whether any pixel has its stencil bit (bit 15) set.
// Returns 1 or 0. An any-set scan is cheaper than a full accumulate, so it
// early-exits on the first hit.
func usedBits5551(pixels []byte, numPixels int) uint8 {
	for i := 0; i < numPixels/2; i++ {
		if binary.LittleEndian.Uint32(pixels[i*4:])&0x80008000 != 0 {
			return 1
		}
	}
	return 0
}

// usedBits4444 ORs all words, then merges the two packed alpha nibbles
// (bits 12-15 of each 16-bit half) into a single 4-bit union.
func usedBits4444(pixels []byte, numPixels int) uint8 {
	var bits uint32
	for i := 0; i < numPixels/2; i++ {
		bits |= binary.LittleEndian.Uint32(pixels[i*4:])
	}
	return uint8(((bits >> 12) & 0xF) | (bits >> 28))
}

// usedBits8888 ORs all words and extracts the alpha byte.
func usedBits8888(pixels []byte, numPixels int) uint8 {
	var bits uint32
	for i := 0; i < numPixels; i++ {
		bits |= binary.LittleEndian.Uint32(pixels[i*4:])
	}
	return uint8(bits >> 24)
}

// UsedStencilBits scans numPixels packed pixels and returns a bitmask where
// bit i set means at least one pixel has stencil bit i set. Formats without
// stencil bits (565, invalid) always return 0.
//
// pixels must hold at least numPixels pixels of the format's byte width, and
// numPixels must be even: 16-bit formats are scanned two pixels per word.
// Callers pass stride*height of the destination target, which is even on
// all real framebuffer layouts.
func UsedStencilBits(format PixelFormat, pixels []byte, numPixels int) uint8 {
	switch format {
	case RGBA5551:
		return usedBits5551(pixels, numPixels)
	case RGBA4444:
		return usedBits4444(pixels, numPixels)
	case RGBA8888:
		return usedBits8888(pixels, numPixels)
	default:
		return 0
	}
}
