package restencil

import (
	"encoding/binary"
	"testing"
)

// pack16 serializes 16-bit pixels little-endian.
func pack16(pixels ...uint16) []byte {
	data := make([]byte, len(pixels)*2)
	for i, p := range pixels {
		binary.LittleEndian.PutUint16(data[i*2:], p)
	}
	return data
}

// pack32 serializes 32-bit pixels little-endian.
func pack32(pixels ...uint32) []byte {
	data := make([]byte, len(pixels)*4)
	for i, p := range pixels {
		binary.LittleEndian.PutUint32(data[i*4:], p)
	}
	return data
}

func TestUsedStencilBits8888(t *testing.T) {
	t.Run("single alpha byte", func(t *testing.T) {
		pixels := pack32(0x00FFFFFF, 0x20FFFFFF, 0x00000000, 0x00123456)
		if got := UsedStencilBits(RGBA8888, pixels, 4); got != 0x20 {
			t.Errorf("UsedStencilBits() = %#02x, want 0x20", got)
		}
	})

	t.Run("union of alphas", func(t *testing.T) {
		pixels := pack32(0x01000000, 0x80000000, 0x04000000)
		if got := UsedStencilBits(RGBA8888, pixels, 3); got != 0x85 {
			t.Errorf("UsedStencilBits() = %#02x, want 0x85", got)
		}
	})

	t.Run("all zero", func(t *testing.T) {
		pixels := pack32(0x00FFFFFF, 0x00ABCDEF)
		if got := UsedStencilBits(RGBA8888, pixels, 2); got != 0 {
			t.Errorf("UsedStencilBits() = %#02x, want 0", got)
		}
	})
}

func TestUsedStencilBits5551(t *testing.T) {
	t.Run("one bit set", func(t *testing.T) {
		pixels := pack16(0x7FFF, 0x0000, 0x8000, 0x7FFF)
		if got := UsedStencilBits(RGBA5551, pixels, 4); got != 1 {
			t.Errorf("UsedStencilBits() = %d, want 1", got)
		}
	})

	t.Run("color bits only", func(t *testing.T) {
		pixels := pack16(0x7FFF, 0x7FFF, 0x1234, 0x5678)
		if got := UsedStencilBits(RGBA5551, pixels, 4); got != 0 {
			t.Errorf("UsedStencilBits() = %d, want 0", got)
		}
	})

	t.Run("bit in second half of word", func(t *testing.T) {
		pixels := pack16(0x0000, 0x8000)
		if got := UsedStencilBits(RGBA5551, pixels, 2); got != 1 {
			t.Errorf("UsedStencilBits() = %d, want 1", got)
		}
	})
}

func TestUsedStencilBits4444(t *testing.T) {
	t.Run("nibbles union across pixels", func(t *testing.T) {
		// Alphas 0x3 and 0xC in different pixels merge to 0xF.
		pixels := pack16(0x3000, 0xC000, 0x0FFF, 0x0000)
		if got := UsedStencilBits(RGBA4444, pixels, 4); got != 0xF {
			t.Errorf("UsedStencilBits() = %#x, want 0xF", got)
		}
	})

	t.Run("both packed halves contribute", func(t *testing.T) {
		// One word holds two pixels; alpha nibbles sit at bits 12-15 and 28-31.
		pixels := pack16(0x1000, 0x8000)
		if got := UsedStencilBits(RGBA4444, pixels, 2); got != 0x9 {
			t.Errorf("UsedStencilBits() = %#x, want 0x9", got)
		}
	})

	t.Run("color nibbles ignored", func(t *testing.T) {
		pixels := pack16(0x0FFF, 0x0FFF)
		if got := UsedStencilBits(RGBA4444, pixels, 2); got != 0 {
			t.Errorf("UsedStencilBits() = %#x, want 0", got)
		}
	})
}

func TestUsedStencilBitsNoStencilFormats(t *testing.T) {
	pixels := pack16(0xFFFF, 0xFFFF)
	if got := UsedStencilBits(RGB565, pixels, 2); got != 0 {
		t.Errorf("565 UsedStencilBits() = %#x, want 0", got)
	}
	if got := UsedStencilBits(FormatInvalid, pixels, 2); got != 0 {
		t.Errorf("invalid UsedStencilBits() = %#x, want 0", got)
	}
}
