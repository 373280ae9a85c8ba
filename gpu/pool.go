//go:build !nogpu

package gpu

import (
	"github.com/emugfx/restencil"
)

// tempPool recycles off-screen targets for the low-resolution rebuild
// strategy. Targets are matched by exact size; the common case is a single
// buffer-resolution temporary reused across every upscaled upload.
type tempPool struct {
	free  []*restencil.RenderTarget
	inUse []*restencil.RenderTarget
}

// acquire returns a free target of exactly width x height, or creates one
// with a materialized backing. The target is held until release.
func (p *tempPool) acquire(d *Device, width, height int) *restencil.RenderTarget {
	for i, t := range p.free {
		if t.RenderWidth == width && t.RenderHeight == height {
			p.free = append(p.free[:i], p.free[i+1:]...)
			p.inUse = append(p.inUse, t)
			return t
		}
	}

	t := &restencil.RenderTarget{
		Width: width, Height: height,
		BufferWidth: width, BufferHeight: height,
		RenderWidth: width, RenderHeight: height,
	}
	if _, err := d.materialize(t); err != nil {
		restencil.Logger().Error("temporary target backing failed", "err", err)
	}
	p.inUse = append(p.inUse, t)
	return t
}

// release returns all held targets to the free list.
func (p *tempPool) release() {
	p.free = append(p.free, p.inUse...)
	p.inUse = p.inUse[:0]
}

// destroy discards every pooled backing.
func (p *tempPool) destroy() {
	p.release()
	for _, t := range p.free {
		if t.Backing != nil {
			t.Backing.Discard()
			t.Backing = nil
		}
	}
	p.free = nil
}
