// Package gpu runs chunk generation on the GPU through wgpu/hal compute
// shaders: one kernel per pipeline stage, with storage buffer visibility
// between stages provided by compute pass boundaries.
package gpu

import (
	_ "embed"
	"fmt"
	"unsafe"

	"github.com/gogpu/naga"
)

//go:embed shaders/sdf_eval.wgsl
var sdfEvalShaderWGSL string

//go:embed shaders/classify.wgsl
var classifyShaderWGSL string

//go:embed shaders/palette_pack.wgsl
var palettePackShaderWGSL string

// ValidateShaders compiles every kernel through naga without touching a
// device. Useful in tests and at startup to fail fast on a bad shader.
func ValidateShaders() error {
	for _, s := range []struct {
		name string
		src  string
	}{
		{"sdf_eval", sdfEvalShaderWGSL},
		{"classify", classifyShaderWGSL},
		{"palette_pack", palettePackShaderWGSL},
	} {
		if s.src == "" {
			return fmt.Errorf("gpu: shader %s is empty", s.name)
		}
		if _, err := naga.Compile(s.src); err != nil {
			return fmt.Errorf("gpu: compile %s: %w", s.name, err)
		}
	}
	return nil
}

// lutAbsent marks a material id with no palette entry in the pack table.
// Must match LUT_ABSENT in palette_pack.wgsl.
const lutAbsent uint32 = 0xFFFFFFFF

// gpuSDFNode is the device layout of one tree node.
// Must match Node in shaders/sdf_eval.wgsl (96 bytes).
type gpuSDFNode struct {
	Tag   uint32
	Pad0  [3]uint32
	P0    [4]float32
	P1    [4]float32
	P2    [4]float32
	P3    [4]float32
	Left  int32
	Right int32
	Pad1  [2]uint32
}

// gpuBrushLayer is the device layout of one brush layer.
// Must match Layer in shaders/classify.wgsl (20 bytes, no padding).
type gpuBrushLayer struct {
	CondStart   uint32
	CondCount   uint32
	Material    uint32
	BlendWeight float32
	Priority    int32
}

// gpuBrushInstruction is the device layout of one condition instruction.
// Must match Instruction in shaders/classify.wgsl (48 bytes).
type gpuBrushInstruction struct {
	Op   uint32
	Pad0 [3]uint32
	P0   [4]float32
	P1   [4]float32
}

// gpuFieldParams is the field kernel's uniform block.
// Must match Params in shaders/sdf_eval.wgsl.
type gpuFieldParams struct {
	BoundsMin  [4]float32
	VoxelSize  [4]float32
	Resolution [4]uint32 // xyz grid size, w = root node index
}

// gpuClassifyParams is the classify kernel's uniform block.
// Must match Params in shaders/classify.wgsl.
type gpuClassifyParams struct {
	BoundsMin  [4]float32
	VoxelSize  [4]float32
	Resolution [4]uint32 // xyz grid size, w = layer count
	Window     [4]uint32 // start unit, unit count, minichunk grid x, y
}

// gpuPackParams is the pack kernel's uniform block.
// Must match Params in shaders/palette_pack.wgsl.
type gpuPackParams struct {
	VoxelCount uint32
	Bits       uint32
	LutSize    uint32
	Pad0       uint32
}

// structBytes views a struct's memory as a byte slice for buffer upload.
func structBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

// sliceBytes views a slice's backing memory as a byte slice.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(s[0])))
}
