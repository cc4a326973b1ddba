package voxgen

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// EvalStackCap is the capacity of the explicit evaluation stack, and
// therefore the maximum supported tree depth. 64 entries is sufficient for
// realistic authored trees; deeper trees are rejected by Tree.Validate.
//
// The WGSL evaluator in internal/gpu/shaders/sdf_eval.wgsl carries the same
// capacity; the two must stay in sync.
const EvalStackCap = 64

// FarDistance is the sentinel distance for unknown node kinds: effectively
// "infinitely far outside", so a malformed node never crashes a work item.
const FarDistance float32 = 1e9

// visitState drives CSG node re-visitation without recursion.
type visitState uint8

const (
	visitNotStarted visitState = iota
	visitLeftDone
	visitBothDone
)

// evalFrame is one entry of the explicit evaluation stack.
type evalFrame struct {
	node  int32
	pos   mgl32.Vec3
	state visitState
	left  float32 // stashed left-child result for operator nodes
}

// Distance evaluates the signed distance from p to the tree's surface.
// Negative values are inside, zero on the surface, positive outside.
// The same point and tree always produce the same value.
//
// Distance returns an error only for structural faults (out-of-range child
// index, stack overflow); both are configuration errors that Tree.Validate
// catches up front, so a validated tree never errors here.
func (t *Tree) Distance(p mgl32.Vec3) (float32, error) {
	if len(t.nodes) == 0 || t.root == NoChild {
		return 0, ErrEmptyTree
	}
	return evalDistance(t.nodes, t.root, p)
}

// evalDistance is the iterative tree walk shared by Distance and the field
// evaluator. It mirrors the control flow of the GPU kernel exactly.
func evalDistance(nodes []SDFNode, root int32, p mgl32.Vec3) (float32, error) {
	if root < 0 || int(root) >= len(nodes) {
		return 0, fmt.Errorf("%w: root %d", ErrNodeIndex, root)
	}

	var stack [EvalStackCap]evalFrame
	stack[0] = evalFrame{node: root, pos: p}
	sp := 1

	push := func(node int32, pos mgl32.Vec3) error {
		if node < 0 || int(node) >= len(nodes) {
			return fmt.Errorf("%w: child %d", ErrNodeIndex, node)
		}
		if sp == EvalStackCap {
			return ErrStackOverflow
		}
		stack[sp] = evalFrame{node: node, pos: pos}
		sp++
		return nil
	}

	// result carries the value produced by the most recently popped frame.
	var result float32

	for sp > 0 {
		f := &stack[sp-1]
		n := &nodes[f.node]

		switch {
		case n.Kind.IsPrimitive():
			result = primitiveDistance(n, f.pos)
			sp--

		case n.Kind.IsOperator():
			switch f.state {
			case visitNotStarted:
				f.state = visitLeftDone
				if err := push(n.Left, f.pos); err != nil {
					return 0, err
				}
			case visitLeftDone:
				f.left = result
				f.state = visitBothDone
				if err := push(n.Right, f.pos); err != nil {
					return 0, err
				}
			default:
				result = combineDistances(n, f.left, result)
				sp--
			}

		case n.Kind.IsTransform():
			if f.state == visitNotStarted {
				f.state = visitLeftDone
				if err := push(n.Left, transformPoint(n, f.pos)); err != nil {
					return 0, err
				}
			} else {
				result = postTransform(n, f.pos, result)
				sp--
			}

		default:
			// Unknown kind: far outside, never a crash.
			result = FarDistance
			sp--
		}
	}
	return result, nil
}

// primitiveDistance computes the closed-form distance for a primitive node.
func primitiveDistance(n *SDFNode, p mgl32.Vec3) float32 {
	switch n.Kind {
	case NodeSphere:
		c := n.Params[0].Vec3()
		return p.Sub(c).Len() - n.Params[0].W()

	case NodeBox:
		q := absVec(p.Sub(n.Params[0].Vec3())).Sub(n.Params[1].Vec3())
		outside := maxVec(q, mgl32.Vec3{}).Len()
		inside := math32.Min(math32.Max(q.X(), math32.Max(q.Y(), q.Z())), 0)
		return outside + inside

	case NodePlane:
		return p.Dot(n.Params[0].Vec3()) - n.Params[0].W()

	case NodeCylinder:
		c := n.Params[0].Vec3()
		dxy := math32.Hypot(p.X()-c.X(), p.Y()-c.Y()) - n.Params[0].W()
		dz := math32.Abs(p.Z()-c.Z()) - n.Params[1].X()
		outside := math32.Hypot(math32.Max(dxy, 0), math32.Max(dz, 0))
		inside := math32.Min(math32.Max(dxy, dz), 0)
		return outside + inside

	case NodeTorus:
		c := n.Params[0].Vec3()
		qx := math32.Hypot(p.X()-c.X(), p.Y()-c.Y()) - n.Params[1].X()
		return math32.Hypot(qx, p.Z()-c.Z()) - n.Params[1].Y()

	case NodeCapsule:
		a := n.Params[0].Vec3()
		b := n.Params[1].Vec3()
		pa := p.Sub(a)
		ba := b.Sub(a)
		denom := ba.Dot(ba)
		h := float32(0)
		if denom > 0 {
			h = clamp32(pa.Dot(ba)/denom, 0, 1)
		}
		return pa.Sub(ba.Mul(h)).Len() - n.Params[0].W()

	case NodeCone:
		return coneDistance(n, p)

	case NodeHexPrism:
		return hexPrismDistance(n, p)

	default:
		return FarDistance
	}
}

// coneDistance is the exact capped cone: apex at Params[0], opening downward
// along -Z with aperture angle Params[1].x and height Params[1].y.
func coneDistance(n *SDFNode, p mgl32.Vec3) float32 {
	apex := n.Params[0].Vec3()
	angle := n.Params[1].X()
	h := n.Params[1].Y()

	// Radial/axial coordinates relative to the apex.
	wx := math32.Hypot(p.X()-apex.X(), p.Y()-apex.Y())
	wy := p.Z() - apex.Z()

	qx := h * math32.Tan(angle)
	qy := -h

	// Closest point on the slanted side.
	dotWQ := wx*qx + wy*qy
	dotQQ := qx*qx + qy*qy
	t := clamp32(dotWQ/dotQQ, 0, 1)
	ax := wx - qx*t
	ay := wy - qy*t

	// Closest point on the base cap.
	s := float32(0)
	if qx > 0 {
		s = clamp32(wx/qx, 0, 1)
	}
	bx := wx - qx*s
	by := wy - qy

	d := math32.Min(ax*ax+ay*ay, bx*bx+by*by)
	sign := math32.Max(-(wx*qy - wy*qx), -(wy - qy))
	if sign < 0 {
		return -math32.Sqrt(d)
	}
	return math32.Sqrt(d)
}

// hexPrismDistance is the exact hexagonal prism along Z.
func hexPrismDistance(n *SDFNode, p mgl32.Vec3) float32 {
	const kx, ky, kz = -0.8660254, 0.5, 0.57735
	c := n.Params[0].Vec3()
	hr := n.Params[1].X()
	hh := n.Params[1].Y()

	px := math32.Abs(p.X() - c.X())
	py := math32.Abs(p.Y() - c.Y())
	pz := math32.Abs(p.Z() - c.Z())

	// Fold into one hex sextant.
	m := 2 * math32.Min(kx*px+ky*py, 0)
	px -= m * kx
	py -= m * ky

	ex := px - clamp32(px, -kz*hr, kz*hr)
	ey := py - hr
	dx := math32.Hypot(ex, ey)
	if py-hr < 0 {
		dx = -dx
	}
	dz := pz - hh

	outside := math32.Hypot(math32.Max(dx, 0), math32.Max(dz, 0))
	inside := math32.Min(math32.Max(dx, dz), 0)
	return outside + inside
}

// combineDistances applies a boolean operator to the two child results.
// Smooth variants reproduce the standard polynomial smooth-min/-max blends;
// with a vanishing smoothing radius they fall back to the hard operators.
func combineDistances(n *SDFNode, d1, d2 float32) float32 {
	k := n.Params[0].X()

	switch n.Kind {
	case NodeUnion:
		return math32.Min(d1, d2)
	case NodeIntersect:
		return math32.Max(d1, d2)
	case NodeDifference:
		return math32.Max(d1, -d2)

	case NodeSmoothUnion:
		if k < 1e-6 {
			return math32.Min(d1, d2)
		}
		h := clamp32(0.5+0.5*(d2-d1)/k, 0, 1)
		return mix32(d2, d1, h) - k*h*(1-h)

	case NodeSmoothIntersect:
		if k < 1e-6 {
			return math32.Max(d1, d2)
		}
		h := clamp32(0.5-0.5*(d2-d1)/k, 0, 1)
		return mix32(d2, d1, h) + k*h*(1-h)

	case NodeSmoothDifference:
		if k < 1e-6 {
			return math32.Max(d1, -d2)
		}
		h := clamp32(0.5-0.5*(d2+d1)/k, 0, 1)
		return mix32(d1, -d2, h) + k*h*(1-h)

	default:
		return FarDistance
	}
}

// transformPoint maps the evaluation point into the child node's local space
// (the inverse of the node's spatial mapping).
func transformPoint(n *SDFNode, p mgl32.Vec3) mgl32.Vec3 {
	switch n.Kind {
	case NodeTransform:
		q := mgl32.Quat{
			W: n.Params[1].W(),
			V: n.Params[1].Vec3(),
		}
		s := safeScale(n.Params[2].Vec3())
		local := q.Inverse().Rotate(p.Sub(n.Params[0].Vec3()))
		return mgl32.Vec3{local.X() / s.X(), local.Y() / s.Y(), local.Z() / s.Z()}

	case NodeTwist:
		rate := n.Params[0].X()
		c := math32.Cos(rate * p.Z())
		s := math32.Sin(rate * p.Z())
		return mgl32.Vec3{c*p.X() - s*p.Y(), s*p.X() + c*p.Y(), p.Z()}

	case NodeBend:
		rate := n.Params[0].X()
		c := math32.Cos(rate * p.X())
		s := math32.Sin(rate * p.X())
		return mgl32.Vec3{c*p.X() - s*p.Z(), p.Y(), s*p.X() + c*p.Z()}

	case NodeRepeat:
		period := n.Params[0].Vec3()
		return mgl32.Vec3{
			repeatAxis(p.X(), period.X()),
			repeatAxis(p.Y(), period.Y()),
			repeatAxis(p.Z(), period.Z()),
		}

	default:
		// Displacement evaluates the child at the unmodified point.
		return p
	}
}

// postTransform adjusts the child's distance after evaluation. Non-uniform
// scaling rescales by the minimum axis so the value remains a lower bound of
// the true distance; twist/bend/repeat are distance-bound preserving as-is.
func postTransform(n *SDFNode, p mgl32.Vec3, d float32) float32 {
	switch n.Kind {
	case NodeTransform:
		s := safeScale(n.Params[2].Vec3())
		return d * math32.Min(s.X(), math32.Min(s.Y(), s.Z()))

	case NodeDisplace:
		freq := n.Params[0].X()
		amp := n.Params[0].Y()
		return d + amp*math32.Sin(freq*p.X())*math32.Sin(freq*p.Y())*math32.Sin(freq*p.Z())

	default:
		return d
	}
}

// safeScale clamps scale magnitudes away from zero so a degenerate authored
// scale produces a flat shape instead of NaN.
func safeScale(s mgl32.Vec3) mgl32.Vec3 {
	const minScale = 1e-6
	f := func(v float32) float32 {
		a := math32.Abs(v)
		if a < minScale {
			return minScale
		}
		return a
	}
	return mgl32.Vec3{f(s.X()), f(s.Y()), f(s.Z())}
}

// repeatAxis folds v into one period cell centered at the origin.
// A non-positive period disables repetition on that axis.
func repeatAxis(v, period float32) float32 {
	if period <= 0 {
		return v
	}
	m := math32.Mod(v+0.5*period, period)
	if m < 0 {
		m += period
	}
	return m - 0.5*period
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mix32 is GLSL mix: a*(1-t) + b*t.
func mix32(a, b, t float32) float32 { return a + (b-a)*t }

func absVec(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Abs(v.X()), math32.Abs(v.Y()), math32.Abs(v.Z())}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		math32.Max(a.X(), b.X()),
		math32.Max(a.Y(), b.Y()),
		math32.Max(a.Z(), b.Z()),
	}
}
