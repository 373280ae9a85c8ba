// Package restencil rebuilds host stencil buffers from emulated framebuffer
// memory.
//
// # Overview
//
// Emulated consoles store per-pixel stencil state inside the unused alpha or
// index bits of packed color framebuffers (5551, 4444, 8888). A host GPU has
// no direct equivalent: when the emulated program writes new pixel data into
// framebuffer memory, the matching stencil bit-planes on the host must be
// reconstructed so that later stencil-tested draws behave like the original
// hardware.
//
// restencil provides the two pieces of that reconstruction:
//
//   - A bit-plane scanner that inspects raw packed-pixel memory and reports
//     which stencil bit positions are set anywhere in the region, so that
//     all-zero planes (the common case) can be skipped entirely.
//   - A reconstructor that drives a small GPU program plane by plane: one
//     masked, replace-on-pass draw per active bit, with the fragment stage
//     discarding pixels whose stored value does not carry the current bit.
//
// # Quick start
//
//	reg := restencil.NewRegistry()
//	reg.Add(&restencil.RenderTarget{
//	    Address: 0x04000000, Format: restencil.RGBA8888,
//	    Stride: 512, Width: 480, Height: 272,
//	    BufferWidth: 512, BufferHeight: 272,
//	    RenderWidth: 512, RenderHeight: 272,
//	})
//	mem := restencil.NewMappedRegion(0x04000000, vram)
//	rec := restencil.NewReconstructor(reg, mem, gpu.New(halDevice, halQueue))
//
//	// After the emulated program writes framebuffer memory:
//	modified := rec.Upload(0x04000000, len(vram), false)
//
// # Devices
//
// The reconstructor talks to the GPU through the narrow Device contract.
// Two implementations ship with the library:
//
//   - gpu.Device (package github.com/emugfx/restencil/gpu): the real thing,
//     built on gogpu/wgpu render pipelines.
//   - SoftwareDevice: a CPU implementation with byte-plane targets, used as a
//     headless fallback and as the bit-exact reference in tests.
//
// # Concurrency
//
// All calls are single-threaded on the goroutine owning the GPU context. At
// most one Upload is in flight at a time; the reconstructor owns the GPU
// state it touches for the duration of the call and restores it before
// returning.
package restencil
