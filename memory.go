package restencil

// Memory resolves guest physical addresses to readable byte slices.
// Implementations are expected to be cheap: the reconstructor calls
// ResolvePointer speculatively on every upload notification.
type Memory interface {
	// ResolvePointer returns the readable bytes starting at addr, or nil
	// if the address is unmapped. The returned slice aliases guest memory;
	// callers must not retain it past the current call.
	ResolvePointer(addr uint32) []byte
}

// MappedRegion is a Memory over a single contiguous mapping: a base guest
// address plus its backing bytes. Addresses are compared by address class,
// so mirrored views of the same physical memory resolve too.
type MappedRegion struct {
	base uint32
	data []byte
}

// NewMappedRegion maps data at the given guest base address.
func NewMappedRegion(base uint32, data []byte) *MappedRegion {
	return &MappedRegion{base: base, data: data}
}

// ResolvePointer returns the bytes from addr to the end of the mapping,
// or nil if addr falls outside it.
func (m *MappedRegion) ResolvePointer(addr uint32) []byte {
	off := int64(addr&addressClassMask) - int64(m.base&addressClassMask)
	if off < 0 || off >= int64(len(m.data)) {
		return nil
	}
	return m.data[off:]
}
