package restencil

// addressClassMask strips mirror/cache bits before comparing framebuffer
// addresses. Two addresses in the same class alias the same physical memory.
const addressClassMask = 0x3FFFFFFF

// Backing is an opaque handle to device-side storage for a render target.
// Devices materialize and own backings; the core only checks for presence
// (a target with no backing yet cannot be the source of a blit).
type Backing interface {
	// Discard releases the device-side storage.
	Discard()
}

// RenderTarget describes one tracked framebuffer: where it lives in guest
// memory, how its pixels are packed, and the three resolutions that matter
// during reconstruction. The registry owns the descriptor; devices attach
// a Backing to it on first use.
type RenderTarget struct {
	// Address is the guest physical address of the first pixel.
	Address uint32

	// Format is the packed-pixel layout of the guest framebuffer.
	Format PixelFormat

	// Stride is the row pitch in pixels. Stride*BufferHeight is the full
	// scanned extent, including the padding pixels between Width and Stride.
	Stride int

	// Width and Height are the logical drawn size.
	Width, Height int

	// BufferWidth and BufferHeight are the storage size (Stride rounded to
	// allocation granularity; always >= Width/Height).
	BufferWidth, BufferHeight int

	// RenderWidth and RenderHeight are the host-side render resolution.
	// They differ from BufferWidth/BufferHeight when internal upscaling
	// is active.
	RenderWidth, RenderHeight int

	// Backing is the device-side storage, nil until a device creates one.
	Backing Backing
}

// Upscaled reports whether the target renders at a different resolution
// than it is stored at.
func (t *RenderTarget) Upscaled() bool {
	return t.BufferWidth != t.RenderWidth
}

// Registry tracks live render targets by guest address. It is the concrete
// counterpart of the framebuffer manager's target list: membership changes
// when the emulator creates or destroys framebuffers, and stencil uploads
// resolve their destination through it.
//
// Registry is not safe for concurrent use; like the reconstructor it lives
// on the GPU thread.
type Registry struct {
	targets []*RenderTarget
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add tracks a target. Later additions win address-class ties, matching the
// behavior of scanning the list in insertion order and keeping the last hit.
func (r *Registry) Add(t *RenderTarget) {
	r.targets = append(r.targets, t)
}

// Remove untracks a target. The caller is responsible for discarding its
// backing if one exists.
func (r *Registry) Remove(t *RenderTarget) {
	for i, cand := range r.targets {
		if cand == t {
			r.targets = append(r.targets[:i], r.targets[i+1:]...)
			return
		}
	}
}

// FindTargetCoveringAddress resolves a guest address to a tracked target
// whose base address is in the same address class, or nil if none matches.
func (r *Registry) FindTargetCoveringAddress(addr uint32) *RenderTarget {
	var dst *RenderTarget
	for _, t := range r.targets {
		if t.Address&addressClassMask == addr&addressClassMask {
			dst = t
		}
	}
	return dst
}
