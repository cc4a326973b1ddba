package voxgen

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// MaterialError is the marker written to every voxel when classification
// cannot produce a material, such as an empty brush set.
const MaterialError uint32 = 0xFFFFFFFF

// smoothstep01 remaps v through the Hermite window [edge0, edge1] into
// [0, 1]. A degenerate window is a hard threshold.
func smoothstep01(edge0, edge1, v float32) float32 {
	if edge0 >= edge1 {
		if v >= edge1 {
			return 1
		}
		return 0
	}
	t := clamp32((v-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

// conditionValue evaluates one condition instruction at a voxel, returning
// its windowed response in [0, 1].
func conditionValue(ins *BrushInstruction, pos mgl32.Vec3, dist float32, grad mgl32.Vec3) float32 {
	var raw float32
	switch ins.Op {
	case CondHeight:
		raw = pos.Z()
	case CondDepth:
		raw = -pos.Z()
	case CondDistance:
		ref := mgl32.Vec3{ins.Params[1].X(), ins.Params[1].Y(), ins.Params[1].Z()}
		if ref == (mgl32.Vec3{}) {
			raw = math32.Abs(dist)
		} else {
			raw = pos.Sub(ref).Len()
		}
	case CondSlope:
		l := grad.Len()
		if l > 1e-12 {
			raw = 1 - math32.Abs(grad.Z()/l)
		}
	case CondCurvature:
		raw = grad.Len()
	case CondNoise:
		raw = fractalNoise(pos, ins.Params[1].X(), int(ins.Params[1].Y()))
	case CondTurbulence:
		raw = turbulence(pos, ins.Params[1].X(), int(ins.Params[1].Y()))
	case CondVoronoi:
		raw = voronoiCell(pos, ins.Params[1].X())
	case CondChecker:
		raw = checker(pos, ins.Params[1].X())
	case CondStripes:
		raw = stripes(pos.Z(), ins.Params[1].X())
	default:
		return 0
	}
	return smoothstep01(ins.Params[0].X(), ins.Params[0].Y(), raw)
}

// layerResult folds a layer's condition run into a single weight in [0, 1].
// The fold starts in AND mode (product); combinator instructions switch the
// mode or invert the next condition. A layer with no conditions always
// applies at full weight.
func layerResult(set *BrushSet, layer *BrushLayer, pos mgl32.Vec3, dist float32, grad mgl32.Vec3) float32 {
	var (
		result  float32 = 1
		orMode  bool
		invert  bool
		started bool
	)
	end := int(layer.CondStart + layer.CondCount)
	for c := int(layer.CondStart); c < end; c++ {
		ins := &set.Instructions[c]
		switch ins.Op {
		case CondAnd:
			orMode = false
			continue
		case CondOr:
			orMode = true
			continue
		case CondNot:
			invert = !invert
			continue
		}
		v := conditionValue(ins, pos, dist, grad)
		if invert {
			v = 1 - v
			invert = false
		}
		if !started {
			result = v
			started = true
		} else if orMode {
			result = max32(result, v)
		} else {
			result *= v
		}
	}
	return result
}

// ClassifyVoxel resolves the material id for one voxel. Every layer is
// evaluated; among layers with positive weighted result the winner is the
// highest (priority, weight) pair, with ties going to the earliest authored
// layer. With no applicable layer the voxel stays material 0 (air); an empty
// brush set marks the voxel MaterialError instead, since zero layers is
// missing configuration, not an empty result.
func ClassifyVoxel(pos mgl32.Vec3, dist float32, grad mgl32.Vec3, set *BrushSet) uint32 {
	if len(set.Layers) == 0 {
		return MaterialError
	}
	var (
		material   uint32
		bestPrio   int32
		bestWeight float32
		found      bool
	)
	for li := range set.Layers {
		layer := &set.Layers[li]
		w := layerResult(set, layer, pos, dist, grad) * layer.BlendWeight
		if w <= 0 {
			continue
		}
		if !found || layer.Priority > bestPrio ||
			(layer.Priority == bestPrio && w > bestWeight) {
			material = layer.Material
			bestPrio = layer.Priority
			bestWeight = w
			found = true
		}
	}
	if !found {
		return 0
	}
	return material
}

// classifyUnit classifies every voxel of one minichunk, clipping at grid
// edges, and writes the results into the shared materials buffer.
func classifyUnit(f *Field, set *BrushSet, materials []uint32, unit int) {
	d := &f.Desc
	oi, oj, ok := d.MinichunkOrigin(unit)
	for k := ok; k < ok+MinichunkSize && k < d.Resolution[2]; k++ {
		for j := oj; j < oj+MinichunkSize && j < d.Resolution[1]; j++ {
			for i := oi; i < oi+MinichunkSize && i < d.Resolution[0]; i++ {
				idx := d.Index(i, j, k)
				materials[idx] = ClassifyVoxel(
					d.CellCenter(i, j, k), f.Data[idx], f.Gradient(i, j, k), set)
			}
		}
	}
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
