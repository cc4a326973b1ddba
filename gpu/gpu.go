//go:build !nogpu

// Package gpu registers the GPU chunk generator for hardware-accelerated
// voxel generation.
//
// Import this package to run field evaluation, material classification, and
// palette bit-packing as wgpu/hal compute shaders. If GPU initialization
// fails (no Vulkan device available), the registration is silently skipped
// and generation falls back to the CPU path.
//
// Usage:
//
//	import _ "github.com/gogpu/voxgen/gpu" // enable GPU generation
package gpu

import (
	"github.com/gogpu/voxgen"
	gpuimpl "github.com/gogpu/voxgen/internal/gpu"
)

func init() {
	if err := gpuimpl.Register(); err != nil {
		voxgen.Logger().Warn("GPU generator not available", "err", err)
	}
}

// Register opens a GPU device and installs the generator explicitly. It
// returns the initialization error instead of logging it, for callers that
// need to know whether the device came up.
func Register() error {
	return gpuimpl.Register()
}

// ValidateShaders compiles every generation kernel through the shader
// translator without touching a device. Useful at startup to fail fast on a
// build that shipped a bad shader.
func ValidateShaders() error {
	return gpuimpl.ValidateShaders()
}
