package voxgen

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Brush errors.
var (
	// ErrNoLayers is returned when a generation call has zero brush layers.
	// Absence of any layer is a configuration error, not an empty result.
	ErrNoLayers = errors.New("voxgen: brush set has no layers")

	// ErrCondRange is returned when a layer's condition range falls outside
	// the instruction buffer.
	ErrCondRange = errors.New("voxgen: layer condition range out of instruction buffer")

	// ErrLayerIndex is returned by BrushSet helpers for a bad layer index.
	ErrLayerIndex = errors.New("voxgen: layer index out of range")
)

// CondOp identifies one condition primitive or boolean combinator of a brush
// layer. Like NodeKind, the set is closed and switched exhaustively.
type CondOp uint32

const (
	// CondHeight samples world Z, remapped through the threshold window.
	CondHeight CondOp = iota

	// CondDepth samples negative world Z.
	CondDepth

	// CondDistance samples the distance to a reference point
	// (Params[1].xyz); with a zero reference point it samples the distance
	// to the SDF surface instead.
	CondDistance

	// CondSlope samples 1 - |g.z| of the normalized gradient: 0 on flat
	// ground, approaching 1 on vertical walls.
	CondSlope

	// CondCurvature samples the raw gradient magnitude.
	CondCurvature

	// CondNoise samples fractal value noise. Params[1].x = frequency,
	// Params[1].y = octave count.
	CondNoise

	// CondTurbulence samples absolute-valued fractal noise. Params[1].x =
	// frequency, Params[1].y = octave count.
	CondTurbulence

	// CondVoronoi samples a per-cell random value of a Voronoi partition.
	// Params[1].x = frequency.
	CondVoronoi

	// CondChecker samples a 3D checkerboard parity. Params[1].x = frequency.
	CondChecker

	// CondStripes samples sine stripes along Z. Params[1].x = frequency.
	CondStripes

	// CondAnd switches the layer's fold combinator to AND (product) for
	// subsequent conditions. AND is the default combinator.
	CondAnd

	// CondOr switches the layer's fold combinator to OR (max) for
	// subsequent conditions.
	CondOr

	// CondNot inverts the result of the immediately following condition;
	// the pair is consumed together.
	CondNot

	condOpCount
)

// String returns the condition op name for diagnostics.
func (op CondOp) String() string {
	switch op {
	case CondHeight:
		return "Height"
	case CondDepth:
		return "Depth"
	case CondDistance:
		return "Distance"
	case CondSlope:
		return "Slope"
	case CondCurvature:
		return "Curvature"
	case CondNoise:
		return "Noise"
	case CondTurbulence:
		return "Turbulence"
	case CondVoronoi:
		return "Voronoi"
	case CondChecker:
		return "Checker"
	case CondStripes:
		return "Stripes"
	case CondAnd:
		return "And"
	case CondOr:
		return "Or"
	case CondNot:
		return "Not"
	default:
		return fmt.Sprintf("CondOp(%d)", uint32(op))
	}
}

// isCombinator reports whether the op manipulates the fold rather than
// producing a condition value.
func (op CondOp) isCombinator() bool {
	return op == CondAnd || op == CondOr || op == CondNot
}

// BrushInstruction is one condition primitive or boolean combinator.
//
// Params[0].x and Params[0].y are the smooth threshold window: the raw
// condition value is remapped through smoothstep(min, max, value). Params[1]
// holds op-specific data (reference point, frequency, octaves). The GPU-side
// layout is gpuBrushInstruction in internal/gpu; both must match
// classify.wgsl.
type BrushInstruction struct {
	Op     CondOp
	Params [2]mgl32.Vec4
}

// BrushLayer is one material-selection rule: a contiguous slice of the
// instruction buffer folded into a single condition value, a material to
// emit, a blend weight applied to the folded result, and a priority.
//
// A CondCount of zero means always-true (the layer selects unconditionally).
// The layout matches classify.wgsl field for field with no implicit padding.
type BrushLayer struct {
	// CondStart and CondCount delimit the layer's instruction range.
	CondStart, CondCount uint32

	// Material is the voxel material ID emitted when the layer wins.
	Material uint32

	// BlendWeight scales the folded condition result.
	BlendWeight float32

	// Priority breaks ties before weight is compared; higher wins.
	Priority int32
}

// BrushSet pairs the ordered layer list with the shared instruction buffer.
// Layers are evaluated in authored order, never sorted. Like Tree, a
// BrushSet is immutable for the duration of a generation call.
type BrushSet struct {
	Layers       []BrushLayer
	Instructions []BrushInstruction
}

// NewBrushSet creates an empty brush set.
func NewBrushSet() *BrushSet { return &BrushSet{} }

// AddLayer appends a layer with no conditions (always-true) and returns its
// index. Conditions added with AddCondition extend the most recently added
// layer's range.
func (s *BrushSet) AddLayer(material uint32, blendWeight float32, priority int32) int {
	s.Layers = append(s.Layers, BrushLayer{
		CondStart:   uint32(len(s.Instructions)),
		Material:    material,
		BlendWeight: blendWeight,
		Priority:    priority,
	})
	return len(s.Layers) - 1
}

// AddCondition appends a condition instruction to the given layer with the
// smooth threshold window [min, max]. The layer must be the most recently
// added one, since layer ranges are contiguous in the shared buffer.
func (s *BrushSet) AddCondition(layer int, op CondOp, min, max float32) error {
	return s.addInstruction(layer, BrushInstruction{
		Op:     op,
		Params: [2]mgl32.Vec4{{min, max, 0, 0}},
	})
}

// AddConditionVec is AddCondition with an op-specific parameter vector
// (reference point for CondDistance; frequency/octaves for pattern ops).
func (s *BrushSet) AddConditionVec(layer int, op CondOp, min, max float32, param mgl32.Vec4) error {
	return s.addInstruction(layer, BrushInstruction{
		Op:     op,
		Params: [2]mgl32.Vec4{{min, max, 0, 0}, param},
	})
}

// AddCombinator appends an AND/OR/NOT combinator to the given layer.
func (s *BrushSet) AddCombinator(layer int, op CondOp) error {
	if !op.isCombinator() {
		return fmt.Errorf("voxgen: %s is not a combinator", op)
	}
	return s.addInstruction(layer, BrushInstruction{Op: op})
}

func (s *BrushSet) addInstruction(layer int, inst BrushInstruction) error {
	if layer < 0 || layer >= len(s.Layers) {
		return fmt.Errorf("%w: %d of %d", ErrLayerIndex, layer, len(s.Layers))
	}
	if layer != len(s.Layers)-1 {
		return fmt.Errorf("voxgen: conditions can only extend the last layer (%d), got %d", len(s.Layers)-1, layer)
	}
	s.Instructions = append(s.Instructions, inst)
	s.Layers[layer].CondCount++
	return nil
}

// Validate checks the inter-buffer invariants: at least one layer, and every
// layer's condition range fully inside the instruction buffer.
func (s *BrushSet) Validate() error {
	if len(s.Layers) == 0 {
		return ErrNoLayers
	}
	for i, l := range s.Layers {
		end := uint64(l.CondStart) + uint64(l.CondCount)
		if end > uint64(len(s.Instructions)) {
			return fmt.Errorf("%w: layer %d range [%d, %d) of %d", ErrCondRange, i, l.CondStart, end, len(s.Instructions))
		}
	}
	return nil
}
