package voxgen

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Tree errors.
var (
	// ErrEmptyTree is returned when a tree has no nodes or no root designated.
	ErrEmptyTree = errors.New("voxgen: tree is empty")

	// ErrNodeIndex is returned when a child or root index is outside the node array.
	ErrNodeIndex = errors.New("voxgen: node index out of range")

	// ErrTreeCycle is returned when the node graph is not a DAG.
	ErrTreeCycle = errors.New("voxgen: tree contains a cycle")

	// ErrNodeArity is returned when a node's children don't match its kind.
	ErrNodeArity = errors.New("voxgen: node child count does not match kind")

	// ErrStackOverflow is returned when tree depth exceeds the evaluation stack.
	ErrStackOverflow = errors.New("voxgen: tree depth exceeds evaluation stack capacity")
)

// NodeKind identifies an SDF primitive, boolean operator, or spatial
// transform. The kind set is closed; evaluation switches exhaustively over it
// and maps anything else to a far-outside sentinel distance.
type NodeKind uint32

const (
	// NodeSphere is a sphere. Params[0].xyz = center, Params[0].w = radius.
	NodeSphere NodeKind = iota

	// NodeBox is an axis-aligned box. Params[0].xyz = center,
	// Params[1].xyz = half extents.
	NodeBox

	// NodePlane is a half-space. Params[0].xyz = unit normal,
	// Params[0].w = offset along the normal.
	NodePlane

	// NodeCylinder is a capped cylinder along Z. Params[0].xyz = center,
	// Params[0].w = radius, Params[1].x = half height.
	NodeCylinder

	// NodeTorus lies in the XY plane. Params[0].xyz = center,
	// Params[1].x = major radius, Params[1].y = minor radius.
	NodeTorus

	// NodeCapsule is a line-swept sphere. Params[0].xyz = endpoint A,
	// Params[0].w = radius, Params[1].xyz = endpoint B.
	NodeCapsule

	// NodeCone is a capped cone opening downward from its apex.
	// Params[0].xyz = apex, Params[1].x = aperture angle (radians),
	// Params[1].y = height.
	NodeCone

	// NodeHexPrism is a hexagonal prism along Z. Params[0].xyz = center,
	// Params[1].x = hex radius (flat-to-flat half width), Params[1].y = half height.
	NodeHexPrism

	// NodeUnion combines children with min(d1, d2).
	NodeUnion

	// NodeIntersect combines children with max(d1, d2).
	NodeIntersect

	// NodeDifference carves the right child out of the left: max(d1, -d2).
	NodeDifference

	// NodeSmoothUnion is a blended union. Params[0].x = smoothing radius k.
	NodeSmoothUnion

	// NodeSmoothIntersect is a blended intersection. Params[0].x = k.
	NodeSmoothIntersect

	// NodeSmoothDifference is a blended difference. Params[0].x = k.
	NodeSmoothDifference

	// NodeTransform rigidly transforms its child. Params[0].xyz = translation,
	// Params[1] = rotation quaternion (x, y, z, w), Params[2].xyz = per-axis
	// scale. The child's distance is rescaled by the minimum axis scale so the
	// result stays a conservative distance bound.
	NodeTransform

	// NodeTwist twists its child around Z. Params[0].x = radians per unit height.
	NodeTwist

	// NodeBend bends its child along X. Params[0].x = radians per unit length.
	NodeBend

	// NodeDisplace perturbs the child's surface with a trigonometric
	// displacement. Params[0].x = frequency, Params[0].y = amplitude.
	NodeDisplace

	// NodeRepeat tiles its child with the given period per axis.
	// Params[0].xyz = period; a zero component disables repetition on that axis.
	NodeRepeat

	nodeKindCount
)

// String returns the node kind name for diagnostics.
func (k NodeKind) String() string {
	switch k {
	case NodeSphere:
		return "Sphere"
	case NodeBox:
		return "Box"
	case NodePlane:
		return "Plane"
	case NodeCylinder:
		return "Cylinder"
	case NodeTorus:
		return "Torus"
	case NodeCapsule:
		return "Capsule"
	case NodeCone:
		return "Cone"
	case NodeHexPrism:
		return "HexPrism"
	case NodeUnion:
		return "Union"
	case NodeIntersect:
		return "Intersect"
	case NodeDifference:
		return "Difference"
	case NodeSmoothUnion:
		return "SmoothUnion"
	case NodeSmoothIntersect:
		return "SmoothIntersect"
	case NodeSmoothDifference:
		return "SmoothDifference"
	case NodeTransform:
		return "Transform"
	case NodeTwist:
		return "Twist"
	case NodeBend:
		return "Bend"
	case NodeDisplace:
		return "Displace"
	case NodeRepeat:
		return "Repeat"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint32(k))
	}
}

// IsPrimitive reports whether the kind is a closed-form shape with no children.
func (k NodeKind) IsPrimitive() bool { return k <= NodeHexPrism }

// IsOperator reports whether the kind combines two children.
func (k NodeKind) IsOperator() bool { return k >= NodeUnion && k <= NodeSmoothDifference }

// IsTransform reports whether the kind remaps a single child.
func (k NodeKind) IsTransform() bool { return k >= NodeTransform && k < nodeKindCount }

// NoChild marks an unused child slot.
const NoChild int32 = -1

// SDFNode is one node of a flattened CSG tree. Nodes reference children by
// index into the owning Tree's node array instead of by pointer, so the whole
// tree uploads to the GPU as one contiguous buffer and evaluates without
// recursion.
//
// The GPU-side layout of this node is gpuSDFNode in internal/gpu; the two
// must stay in sync with sdf_eval.wgsl.
type SDFNode struct {
	// Kind selects the distance formula or combination rule.
	Kind NodeKind

	// Params are up to four vector-of-4 numeric slots whose semantics depend
	// on Kind. See the NodeKind constants for per-kind conventions.
	Params [4]mgl32.Vec4

	// Left and Right are child indices. Operators use both, transforms use
	// Left only, primitives use neither (NoChild).
	Left, Right int32
}

// Tree is a flattened SDF tree: a node arena plus a designated root.
// Trees are authored once and treated as immutable for the duration of a
// generation call; they may be shared across concurrent jobs.
type Tree struct {
	nodes []SDFNode
	root  int32
}

// NewTree creates an empty tree with no root.
func NewTree() *Tree {
	return &Tree{root: NoChild}
}

// Nodes returns the underlying node array. The slice must not be mutated
// while a generation job is in flight.
func (t *Tree) Nodes() []SDFNode { return t.nodes }

// Root returns the designated root index, or NoChild if none is set.
func (t *Tree) Root() int32 { return t.root }

// SetRoot designates the evaluation root.
func (t *Tree) SetRoot(idx int32) { t.root = idx }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Add appends a node and returns its index. Most callers should prefer the
// typed helpers (AddSphere, AddUnion, ...) which fill Params correctly.
func (t *Tree) Add(n SDFNode) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

// AddSphere appends a sphere primitive.
func (t *Tree) AddSphere(center mgl32.Vec3, radius float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeSphere,
		Params: [4]mgl32.Vec4{{center.X(), center.Y(), center.Z(), radius}},
		Left:   NoChild, Right: NoChild,
	})
}

// AddBox appends an axis-aligned box primitive.
func (t *Tree) AddBox(center, halfExtents mgl32.Vec3) int32 {
	return t.Add(SDFNode{
		Kind: NodeBox,
		Params: [4]mgl32.Vec4{
			center.Vec4(0),
			halfExtents.Vec4(0),
		},
		Left: NoChild, Right: NoChild,
	})
}

// AddPlane appends a half-space primitive. The normal is normalized here so
// the distance stays metric.
func (t *Tree) AddPlane(normal mgl32.Vec3, offset float32) int32 {
	n := normal.Normalize()
	return t.Add(SDFNode{
		Kind:   NodePlane,
		Params: [4]mgl32.Vec4{{n.X(), n.Y(), n.Z(), offset}},
		Left:   NoChild, Right: NoChild,
	})
}

// AddCylinder appends a capped cylinder along Z.
func (t *Tree) AddCylinder(center mgl32.Vec3, radius, halfHeight float32) int32 {
	return t.Add(SDFNode{
		Kind: NodeCylinder,
		Params: [4]mgl32.Vec4{
			{center.X(), center.Y(), center.Z(), radius},
			{halfHeight, 0, 0, 0},
		},
		Left: NoChild, Right: NoChild,
	})
}

// AddTorus appends a torus in the XY plane.
func (t *Tree) AddTorus(center mgl32.Vec3, major, minor float32) int32 {
	return t.Add(SDFNode{
		Kind: NodeTorus,
		Params: [4]mgl32.Vec4{
			center.Vec4(0),
			{major, minor, 0, 0},
		},
		Left: NoChild, Right: NoChild,
	})
}

// AddCapsule appends a capsule between two endpoints.
func (t *Tree) AddCapsule(a, b mgl32.Vec3, radius float32) int32 {
	return t.Add(SDFNode{
		Kind: NodeCapsule,
		Params: [4]mgl32.Vec4{
			{a.X(), a.Y(), a.Z(), radius},
			b.Vec4(0),
		},
		Left: NoChild, Right: NoChild,
	})
}

// AddCone appends a capped cone opening downward from its apex.
func (t *Tree) AddCone(apex mgl32.Vec3, angle, height float32) int32 {
	return t.Add(SDFNode{
		Kind: NodeCone,
		Params: [4]mgl32.Vec4{
			apex.Vec4(0),
			{angle, height, 0, 0},
		},
		Left: NoChild, Right: NoChild,
	})
}

// AddHexPrism appends a hexagonal prism along Z.
func (t *Tree) AddHexPrism(center mgl32.Vec3, radius, halfHeight float32) int32 {
	return t.Add(SDFNode{
		Kind: NodeHexPrism,
		Params: [4]mgl32.Vec4{
			center.Vec4(0),
			{radius, halfHeight, 0, 0},
		},
		Left: NoChild, Right: NoChild,
	})
}

// AddUnion appends a hard union of two nodes.
func (t *Tree) AddUnion(left, right int32) int32 {
	return t.Add(SDFNode{Kind: NodeUnion, Left: left, Right: right})
}

// AddIntersect appends a hard intersection of two nodes.
func (t *Tree) AddIntersect(left, right int32) int32 {
	return t.Add(SDFNode{Kind: NodeIntersect, Left: left, Right: right})
}

// AddDifference appends a difference node carving right out of left.
func (t *Tree) AddDifference(left, right int32) int32 {
	return t.Add(SDFNode{Kind: NodeDifference, Left: left, Right: right})
}

// AddSmoothUnion appends a blended union with smoothing radius k.
func (t *Tree) AddSmoothUnion(left, right int32, k float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeSmoothUnion,
		Params: [4]mgl32.Vec4{{k, 0, 0, 0}},
		Left:   left, Right: right,
	})
}

// AddSmoothIntersect appends a blended intersection with smoothing radius k.
func (t *Tree) AddSmoothIntersect(left, right int32, k float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeSmoothIntersect,
		Params: [4]mgl32.Vec4{{k, 0, 0, 0}},
		Left:   left, Right: right,
	})
}

// AddSmoothDifference appends a blended difference with smoothing radius k.
func (t *Tree) AddSmoothDifference(left, right int32, k float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeSmoothDifference,
		Params: [4]mgl32.Vec4{{k, 0, 0, 0}},
		Left:   left, Right: right,
	})
}

// AddTransform appends a rigid transform of a child node.
func (t *Tree) AddTransform(child int32, translate mgl32.Vec3, rotate mgl32.Quat, scale mgl32.Vec3) int32 {
	return t.Add(SDFNode{
		Kind: NodeTransform,
		Params: [4]mgl32.Vec4{
			translate.Vec4(0),
			{rotate.X(), rotate.Y(), rotate.Z(), rotate.W},
			scale.Vec4(0),
		},
		Left: child, Right: NoChild,
	})
}

// AddTwist appends a twist of a child around Z.
func (t *Tree) AddTwist(child int32, rate float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeTwist,
		Params: [4]mgl32.Vec4{{rate, 0, 0, 0}},
		Left:   child, Right: NoChild,
	})
}

// AddBend appends a bend of a child along X.
func (t *Tree) AddBend(child int32, rate float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeBend,
		Params: [4]mgl32.Vec4{{rate, 0, 0, 0}},
		Left:   child, Right: NoChild,
	})
}

// AddDisplace appends a trigonometric surface displacement of a child.
func (t *Tree) AddDisplace(child int32, frequency, amplitude float32) int32 {
	return t.Add(SDFNode{
		Kind:   NodeDisplace,
		Params: [4]mgl32.Vec4{{frequency, amplitude, 0, 0}},
		Left:   child, Right: NoChild,
	})
}

// AddRepeat appends an infinite repetition of a child with the given period.
func (t *Tree) AddRepeat(child int32, period mgl32.Vec3) int32 {
	return t.Add(SDFNode{
		Kind:   NodeRepeat,
		Params: [4]mgl32.Vec4{period.Vec4(0)},
		Left:   child, Right: NoChild,
	})
}

// Validate checks the structural invariants required for evaluation:
// indices in range, child arity matching each node's kind, acyclicity, and a
// maximum evaluation depth that fits the explicit stack. It must pass before
// a tree is handed to a generation job; exceeding the stack capacity is a
// configuration error, never a silent truncation.
func (t *Tree) Validate() error {
	if len(t.nodes) == 0 || t.root == NoChild {
		return ErrEmptyTree
	}
	if t.root < 0 || int(t.root) >= len(t.nodes) {
		return fmt.Errorf("%w: root %d of %d nodes", ErrNodeIndex, t.root, len(t.nodes))
	}
	for i := range t.nodes {
		if err := t.checkArity(int32(i)); err != nil {
			return err
		}
	}
	depth, err := t.measureDepth(t.root, make([]uint8, len(t.nodes)))
	if err != nil {
		return err
	}
	if depth > EvalStackCap {
		return fmt.Errorf("%w: depth %d > %d", ErrStackOverflow, depth, EvalStackCap)
	}
	return nil
}

// checkArity verifies child indices against the node kind.
func (t *Tree) checkArity(idx int32) error {
	n := &t.nodes[idx]
	inRange := func(c int32) bool { return c >= 0 && int(c) < len(t.nodes) }
	switch {
	case n.Kind.IsPrimitive():
		if n.Left != NoChild || n.Right != NoChild {
			return fmt.Errorf("%w: %s node %d has children", ErrNodeArity, n.Kind, idx)
		}
	case n.Kind.IsOperator():
		if !inRange(n.Left) || !inRange(n.Right) {
			return fmt.Errorf("%w: %s node %d children (%d, %d)", ErrNodeIndex, n.Kind, idx, n.Left, n.Right)
		}
	case n.Kind.IsTransform():
		if !inRange(n.Left) {
			return fmt.Errorf("%w: %s node %d child %d", ErrNodeIndex, n.Kind, idx, n.Left)
		}
		if n.Right != NoChild {
			return fmt.Errorf("%w: %s node %d has a right child", ErrNodeArity, n.Kind, idx)
		}
	default:
		// Unknown kinds are tolerated at evaluation time (far sentinel) but
		// rejected here so authoring mistakes surface early.
		return fmt.Errorf("%w: node %d kind %d", ErrNodeArity, idx, uint32(n.Kind))
	}
	return nil
}

// DFS colors for cycle detection.
const (
	colorWhite uint8 = iota
	colorGray
	colorBlack
)

// measureDepth returns the maximum evaluation-stack depth rooted at idx and
// rejects cycles. Shared subtrees (DAG nodes) are revisited because the stack
// cost depends on the path, but gray-marking bounds the walk to simple paths.
func (t *Tree) measureDepth(idx int32, color []uint8) (int, error) {
	if color[idx] == colorGray {
		return 0, fmt.Errorf("%w: via node %d", ErrTreeCycle, idx)
	}
	color[idx] = colorGray
	defer func() { color[idx] = colorWhite }()

	n := &t.nodes[idx]
	depth := 1
	if n.Kind.IsOperator() || n.Kind.IsTransform() {
		l, err := t.measureDepth(n.Left, color)
		if err != nil {
			return 0, err
		}
		depth = 1 + l
		if n.Kind.IsOperator() {
			r, err := t.measureDepth(n.Right, color)
			if err != nil {
				return 0, err
			}
			if 1+r > depth {
				depth = 1 + r
			}
		}
	}
	return depth, nil
}
