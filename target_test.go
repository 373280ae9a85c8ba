package restencil

import "testing"

func TestRegistryFindTargetCoveringAddress(t *testing.T) {
	r := NewRegistry()
	a := &RenderTarget{Address: 0x04000000}
	b := &RenderTarget{Address: 0x04088000}
	r.Add(a)
	r.Add(b)

	if got := r.FindTargetCoveringAddress(0x04000000); got != a {
		t.Errorf("find 0x04000000 = %v, want a", got)
	}
	if got := r.FindTargetCoveringAddress(0x04088000); got != b {
		t.Errorf("find 0x04088000 = %v, want b", got)
	}
	if got := r.FindTargetCoveringAddress(0x04100000); got != nil {
		t.Errorf("find unknown = %v, want nil", got)
	}
}

func TestRegistryAddressClassMirrors(t *testing.T) {
	r := NewRegistry()
	tgt := &RenderTarget{Address: 0x04000000}
	r.Add(tgt)

	// Mirror bits above bit 29 are ignored when matching.
	if got := r.FindTargetCoveringAddress(0x44000000); got != tgt {
		t.Errorf("mirrored lookup = %v, want target", got)
	}

	r2 := NewRegistry()
	tgt2 := &RenderTarget{Address: 0x44000000}
	r2.Add(tgt2)
	if got := r2.FindTargetCoveringAddress(0x04000000); got != tgt2 {
		t.Errorf("mirrored registration = %v, want target", got)
	}
}

func TestRegistryLastMatchWins(t *testing.T) {
	r := NewRegistry()
	old := &RenderTarget{Address: 0x04000000}
	newer := &RenderTarget{Address: 0x44000000}
	r.Add(old)
	r.Add(newer)

	if got := r.FindTargetCoveringAddress(0x04000000); got != newer {
		t.Errorf("find = %v, want the later addition", got)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	tgt := &RenderTarget{Address: 0x04000000}
	r.Add(tgt)
	r.Remove(tgt)

	if got := r.FindTargetCoveringAddress(0x04000000); got != nil {
		t.Errorf("find after remove = %v, want nil", got)
	}

	// Removing twice is a no-op.
	r.Remove(tgt)
}

func TestRenderTargetUpscaled(t *testing.T) {
	flat := &RenderTarget{BufferWidth: 512, RenderWidth: 512}
	if flat.Upscaled() {
		t.Error("1x target reported as upscaled")
	}
	scaled := &RenderTarget{BufferWidth: 512, RenderWidth: 1024}
	if !scaled.Upscaled() {
		t.Error("2x target not reported as upscaled")
	}
}
