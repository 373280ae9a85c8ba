// Package gpu implements the stencil reconstruction device on top of
// gogpu/wgpu HAL render pipelines.
//
// The package mirrors the restencil.Device call sequence onto WebGPU-style
// primitives. Stencil write masks are static pipeline state there, so the
// per-plane masked draws of the reconstruction run against a small cache of
// pipeline variants, one per write mask. Shaders are WGSL, compiled to
// SPIR-V through naga at program build time.
//
// Build with the nogpu tag to exclude the HAL-backed device; the software
// device in the parent package covers headless use.
package gpu
