package voxgen

import (
	"errors"
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func evalAt(t *testing.T, tree *Tree, p mgl32.Vec3) float32 {
	t.Helper()
	d, err := tree.Distance(p)
	if err != nil {
		t.Fatalf("Distance(%v) error: %v", p, err)
	}
	return d
}

func TestPrimitiveSurfaceZero(t *testing.T) {
	tests := []struct {
		name    string
		build   func(*Tree) int32
		surface mgl32.Vec3
		inside  mgl32.Vec3
		outside mgl32.Vec3
	}{
		{
			name:    "sphere",
			build:   func(tr *Tree) int32 { return tr.AddSphere(mgl32.Vec3{1, 2, 3}, 2) },
			surface: mgl32.Vec3{3, 2, 3},
			inside:  mgl32.Vec3{1, 2, 3},
			outside: mgl32.Vec3{5, 2, 3},
		},
		{
			name:    "box",
			build:   func(tr *Tree) int32 { return tr.AddBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 2, 3}) },
			surface: mgl32.Vec3{1, 0, 0},
			inside:  mgl32.Vec3{0, 0, 0},
			outside: mgl32.Vec3{3, 0, 0},
		},
		{
			name:    "plane",
			build:   func(tr *Tree) int32 { return tr.AddPlane(mgl32.Vec3{0, 0, 1}, 5) },
			surface: mgl32.Vec3{7, -3, 5},
			inside:  mgl32.Vec3{0, 0, 0},
			outside: mgl32.Vec3{0, 0, 10},
		},
		{
			name:    "cylinder",
			build:   func(tr *Tree) int32 { return tr.AddCylinder(mgl32.Vec3{0, 0, 0}, 1, 2) },
			surface: mgl32.Vec3{1, 0, 0},
			inside:  mgl32.Vec3{0, 0, 0},
			outside: mgl32.Vec3{3, 0, 0},
		},
		{
			name:    "torus",
			build:   func(tr *Tree) int32 { return tr.AddTorus(mgl32.Vec3{0, 0, 0}, 3, 1) },
			surface: mgl32.Vec3{4, 0, 0},
			inside:  mgl32.Vec3{3, 0, 0},
			outside: mgl32.Vec3{7, 0, 0},
		},
		{
			name:    "capsule",
			build:   func(tr *Tree) int32 { return tr.AddCapsule(mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 0, 1}, 0.5) },
			surface: mgl32.Vec3{0.5, 0, 0},
			inside:  mgl32.Vec3{0, 0, 0},
			outside: mgl32.Vec3{2, 0, 0},
		},
		{
			name:    "cone",
			build:   func(tr *Tree) int32 { return tr.AddCone(mgl32.Vec3{0, 0, 2}, math.Pi / 4, 2) },
			surface: mgl32.Vec3{0, 0, 2},
			inside:  mgl32.Vec3{0, 0, 1},
			outside: mgl32.Vec3{5, 0, 2},
		},
		{
			name:    "hex prism",
			build:   func(tr *Tree) int32 { return tr.AddHexPrism(mgl32.Vec3{0, 0, 0}, 1, 2) },
			surface: mgl32.Vec3{0, 0, 2},
			inside:  mgl32.Vec3{0, 0, 0},
			outside: mgl32.Vec3{0, 5, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewTree()
			tree.SetRoot(tt.build(tree))
			if err := tree.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if d := evalAt(t, tree, tt.surface); math32.Abs(d) > 1e-4 {
				t.Errorf("surface point %v: d = %g, want ~0", tt.surface, d)
			}
			if d := evalAt(t, tree, tt.inside); d >= 0 {
				t.Errorf("inside point %v: d = %g, want < 0", tt.inside, d)
			}
			if d := evalAt(t, tree, tt.outside); d <= 0 {
				t.Errorf("outside point %v: d = %g, want > 0", tt.outside, d)
			}
		})
	}
}

func TestSphereExactDistance(t *testing.T) {
	tree := NewTree()
	tree.SetRoot(tree.AddSphere(mgl32.Vec3{0, 0, 0}, 1))

	for _, p := range []mgl32.Vec3{{2, 0, 0}, {0, 3, 0}, {0, 0, -4}, {1, 1, 1}} {
		want := p.Len() - 1
		got := evalAt(t, tree, p)
		if math32.Abs(got-want) > 1e-5 {
			t.Errorf("d(%v) = %g, want %g", p, got, want)
		}
	}
}

func TestOperatorConsistency(t *testing.T) {
	// Two overlapping unit spheres at x = -0.5 and x = +0.5.
	build := func() (*Tree, int32, int32) {
		tree := NewTree()
		a := tree.AddSphere(mgl32.Vec3{-0.5, 0, 0}, 1)
		b := tree.AddSphere(mgl32.Vec3{0.5, 0, 0}, 1)
		return tree, a, b
	}
	probes := []mgl32.Vec3{
		{0, 0, 0}, {-1.2, 0, 0}, {1.2, 0, 0}, {0, 2, 0}, {0.3, 0.4, -0.2},
	}

	tests := []struct {
		name    string
		op      func(tr *Tree, a, b int32) int32
		combine func(d1, d2 float32) float32
	}{
		{
			name:    "union is min",
			op:      func(tr *Tree, a, b int32) int32 { return tr.AddUnion(a, b) },
			combine: func(d1, d2 float32) float32 { return math32.Min(d1, d2) },
		},
		{
			name:    "intersect is max",
			op:      func(tr *Tree, a, b int32) int32 { return tr.AddIntersect(a, b) },
			combine: func(d1, d2 float32) float32 { return math32.Max(d1, d2) },
		},
		{
			name:    "difference is max of negated right",
			op:      func(tr *Tree, a, b int32) int32 { return tr.AddDifference(a, b) },
			combine: func(d1, d2 float32) float32 { return math32.Max(d1, -d2) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, a, b := build()
			tree.SetRoot(tt.op(tree, a, b))

			left := NewTree()
			left.SetRoot(left.AddSphere(mgl32.Vec3{-0.5, 0, 0}, 1))
			right := NewTree()
			right.SetRoot(right.AddSphere(mgl32.Vec3{0.5, 0, 0}, 1))

			for _, p := range probes {
				want := tt.combine(evalAt(t, left, p), evalAt(t, right, p))
				got := evalAt(t, tree, p)
				if math32.Abs(got-want) > 1e-5 {
					t.Errorf("d(%v) = %g, want %g", p, got, want)
				}
			}
		})
	}
}

func TestSmoothOpsConvergeToHard(t *testing.T) {
	probes := []mgl32.Vec3{
		{0, 0, 0}, {-1.5, 0.2, 0}, {1.5, -0.2, 0}, {0, 1, 1},
	}
	smooth := []struct {
		name   string
		smooth func(tr *Tree, a, b int32, k float32) int32
		hard   func(tr *Tree, a, b int32) int32
	}{
		{
			"smooth union",
			func(tr *Tree, a, b int32, k float32) int32 { return tr.AddSmoothUnion(a, b, k) },
			func(tr *Tree, a, b int32) int32 { return tr.AddUnion(a, b) },
		},
		{
			"smooth intersect",
			func(tr *Tree, a, b int32, k float32) int32 { return tr.AddSmoothIntersect(a, b, k) },
			func(tr *Tree, a, b int32) int32 { return tr.AddIntersect(a, b) },
		},
		{
			"smooth difference",
			func(tr *Tree, a, b int32, k float32) int32 { return tr.AddSmoothDifference(a, b, k) },
			func(tr *Tree, a, b int32) int32 { return tr.AddDifference(a, b) },
		},
	}
	for _, tt := range smooth {
		t.Run(tt.name, func(t *testing.T) {
			hardTree := NewTree()
			ha := hardTree.AddSphere(mgl32.Vec3{-0.5, 0, 0}, 1)
			hb := hardTree.AddSphere(mgl32.Vec3{0.5, 0, 0}, 1)
			hardTree.SetRoot(tt.hard(hardTree, ha, hb))

			for _, k := range []float32{0.1, 0.01, 0.001} {
				smoothTree := NewTree()
				sa := smoothTree.AddSphere(mgl32.Vec3{-0.5, 0, 0}, 1)
				sb := smoothTree.AddSphere(mgl32.Vec3{0.5, 0, 0}, 1)
				smoothTree.SetRoot(tt.smooth(smoothTree, sa, sb, k))

				for _, p := range probes {
					want := evalAt(t, hardTree, p)
					got := evalAt(t, smoothTree, p)
					// The blend deviates from the hard op by at most k/4.
					if math32.Abs(got-want) > k {
						t.Errorf("k=%g d(%v) = %g, hard = %g", k, p, got, want)
					}
				}
			}

			// Vanishing k is exactly the hard operator.
			zeroTree := NewTree()
			za := zeroTree.AddSphere(mgl32.Vec3{-0.5, 0, 0}, 1)
			zb := zeroTree.AddSphere(mgl32.Vec3{0.5, 0, 0}, 1)
			zeroTree.SetRoot(tt.smooth(zeroTree, za, zb, 0))
			for _, p := range probes {
				want := evalAt(t, hardTree, p)
				got := evalAt(t, zeroTree, p)
				if got != want {
					t.Errorf("k=0 d(%v) = %g, want exactly %g", p, got, want)
				}
			}
		})
	}
}

func TestSmoothUnionBlendsInterior(t *testing.T) {
	// Between two barely-touching spheres the smooth union must dip below
	// the hard union (the blend adds material).
	hard := NewTree()
	a := hard.AddSphere(mgl32.Vec3{-1, 0, 0}, 1)
	b := hard.AddSphere(mgl32.Vec3{1, 0, 0}, 1)
	hard.SetRoot(hard.AddUnion(a, b))

	smooth := NewTree()
	sa := smooth.AddSphere(mgl32.Vec3{-1, 0, 0}, 1)
	sb := smooth.AddSphere(mgl32.Vec3{1, 0, 0}, 1)
	smooth.SetRoot(smooth.AddSmoothUnion(sa, sb, 0.5))

	p := mgl32.Vec3{0, 0, 0}
	dh := evalAt(t, hard, p)
	ds := evalAt(t, smooth, p)
	if ds >= dh {
		t.Errorf("smooth union at seam = %g, want < hard union %g", ds, dh)
	}
}

func TestTransformTranslateRotate(t *testing.T) {
	// A unit sphere translated to (3, 0, 0).
	tree := NewTree()
	s := tree.AddSphere(mgl32.Vec3{0, 0, 0}, 1)
	tree.SetRoot(tree.AddTransform(s, mgl32.Vec3{3, 0, 0}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1}))

	if d := evalAt(t, tree, mgl32.Vec3{3, 0, 0}); math32.Abs(d+1) > 1e-5 {
		t.Errorf("center of translated sphere: d = %g, want -1", d)
	}
	if d := evalAt(t, tree, mgl32.Vec3{4, 0, 0}); math32.Abs(d) > 1e-5 {
		t.Errorf("surface of translated sphere: d = %g, want 0", d)
	}

	// A box rotated 90 degrees about Z swaps its X and Y extents.
	rot := mgl32.QuatRotate(math.Pi/2, mgl32.Vec3{0, 0, 1})
	boxTree := NewTree()
	bx := boxTree.AddBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{2, 1, 1})
	boxTree.SetRoot(boxTree.AddTransform(bx, mgl32.Vec3{}, rot, mgl32.Vec3{1, 1, 1}))

	if d := evalAt(t, boxTree, mgl32.Vec3{0, 1.9, 0}); d >= 0 {
		t.Errorf("rotated box long axis: d = %g, want < 0", d)
	}
	if d := evalAt(t, boxTree, mgl32.Vec3{1.9, 0, 0}); d <= 0 {
		t.Errorf("rotated box short axis: d = %g, want > 0", d)
	}
}

func TestTransformScaleStaysLowerBound(t *testing.T) {
	tree := NewTree()
	s := tree.AddSphere(mgl32.Vec3{0, 0, 0}, 1)
	tree.SetRoot(tree.AddTransform(s, mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{2, 1, 1}))

	// Surface along the scaled axis sits at x = 2.
	if d := evalAt(t, tree, mgl32.Vec3{1.9, 0, 0}); d >= 0 {
		t.Errorf("inside scaled sphere: d = %g, want < 0", d)
	}
	// Outside, the value must stay a conservative bound of the true distance.
	p := mgl32.Vec3{4, 0, 0}
	d := evalAt(t, tree, p)
	if d <= 0 {
		t.Errorf("outside scaled sphere: d = %g, want > 0", d)
	}
	if d > 2+1e-4 {
		t.Errorf("d = %g exceeds true distance 2", d)
	}
}

func TestRepeatTiles(t *testing.T) {
	tree := NewTree()
	s := tree.AddSphere(mgl32.Vec3{0, 0, 0}, 0.5)
	tree.SetRoot(tree.AddRepeat(s, mgl32.Vec3{4, 0, 0}))

	// Every 4 units along X there is a sphere copy.
	for _, cx := range []float32{-8, -4, 0, 4, 8} {
		if d := evalAt(t, tree, mgl32.Vec3{cx, 0, 0}); math32.Abs(d+0.5) > 1e-4 {
			t.Errorf("copy center x=%g: d = %g, want -0.5", cx, d)
		}
	}
	// Y stays unrepeated.
	if d := evalAt(t, tree, mgl32.Vec3{0, 4, 0}); d <= 0 {
		t.Errorf("off-axis point: d = %g, want > 0", d)
	}
}

func TestDisplacePerturbsSurface(t *testing.T) {
	plain := NewTree()
	plain.SetRoot(plain.AddSphere(mgl32.Vec3{0, 0, 0}, 1))

	tree := NewTree()
	s := tree.AddSphere(mgl32.Vec3{0, 0, 0}, 1)
	tree.SetRoot(tree.AddDisplace(s, 5, 0.2))

	p := mgl32.Vec3{0.7, 0.5, 0.3}
	dp := evalAt(t, plain, p)
	dd := evalAt(t, tree, p)
	if dd == dp {
		t.Errorf("displacement had no effect at %v", p)
	}
	if math32.Abs(dd-dp) > 0.2+1e-5 {
		t.Errorf("displacement exceeds amplitude: |%g - %g| > 0.2", dd, dp)
	}
}

func TestDistanceDeterministic(t *testing.T) {
	tree := NewTree()
	a := tree.AddSphere(mgl32.Vec3{-0.5, 0, 0}, 1)
	b := tree.AddBox(mgl32.Vec3{0.5, 0, 0}, mgl32.Vec3{1, 1, 1})
	tree.SetRoot(tree.AddSmoothUnion(a, b, 0.3))

	p := mgl32.Vec3{0.1, 0.2, 0.3}
	first := evalAt(t, tree, p)
	for i := 0; i < 10; i++ {
		if got := evalAt(t, tree, p); got != first {
			t.Fatalf("run %d: d = %g, want %g", i, got, first)
		}
	}
}

func TestValidateRejectsBadTrees(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		tree := NewTree()
		if err := tree.Validate(); !errors.Is(err, ErrEmptyTree) {
			t.Errorf("Validate() = %v, want ErrEmptyTree", err)
		}
	})

	t.Run("root out of range", func(t *testing.T) {
		tree := NewTree()
		tree.AddSphere(mgl32.Vec3{}, 1)
		tree.SetRoot(5)
		if err := tree.Validate(); !errors.Is(err, ErrNodeIndex) {
			t.Errorf("Validate() = %v, want ErrNodeIndex", err)
		}
	})

	t.Run("operator missing child", func(t *testing.T) {
		tree := NewTree()
		a := tree.AddSphere(mgl32.Vec3{}, 1)
		tree.SetRoot(tree.Add(SDFNode{Kind: NodeUnion, Left: a, Right: NoChild}))
		if err := tree.Validate(); !errors.Is(err, ErrNodeIndex) {
			t.Errorf("Validate() = %v, want ErrNodeIndex", err)
		}
	})

	t.Run("primitive with child", func(t *testing.T) {
		tree := NewTree()
		a := tree.AddSphere(mgl32.Vec3{}, 1)
		tree.SetRoot(tree.Add(SDFNode{Kind: NodeSphere, Left: a, Right: NoChild}))
		if err := tree.Validate(); !errors.Is(err, ErrNodeArity) {
			t.Errorf("Validate() = %v, want ErrNodeArity", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		tree := NewTree()
		a := tree.Add(SDFNode{Kind: NodeTwist, Left: 1, Right: NoChild})
		tree.Add(SDFNode{Kind: NodeTwist, Left: a, Right: NoChild})
		tree.SetRoot(a)
		if err := tree.Validate(); !errors.Is(err, ErrTreeCycle) {
			t.Errorf("Validate() = %v, want ErrTreeCycle", err)
		}
	})

	t.Run("too deep", func(t *testing.T) {
		tree := NewTree()
		idx := tree.AddSphere(mgl32.Vec3{}, 1)
		for i := 0; i < EvalStackCap+1; i++ {
			idx = tree.AddTwist(idx, 0.1)
		}
		tree.SetRoot(idx)
		if err := tree.Validate(); !errors.Is(err, ErrStackOverflow) {
			t.Errorf("Validate() = %v, want ErrStackOverflow", err)
		}
	})
}

func TestUnknownKindIsFar(t *testing.T) {
	tree := NewTree()
	tree.SetRoot(tree.Add(SDFNode{Kind: NodeKind(200), Left: NoChild, Right: NoChild}))
	d, err := tree.Distance(mgl32.Vec3{0, 0, 0})
	if err != nil {
		t.Fatalf("Distance error: %v", err)
	}
	if d != FarDistance {
		t.Errorf("d = %g, want FarDistance", d)
	}
}

func TestNodeKindString(t *testing.T) {
	if got := NodeSphere.String(); got != "Sphere" {
		t.Errorf("NodeSphere.String() = %q", got)
	}
	if got := NodeSmoothUnion.String(); got != "SmoothUnion" {
		t.Errorf("NodeSmoothUnion.String() = %q", got)
	}
	if got := NodeKind(99).String(); got != "NodeKind(99)" {
		t.Errorf("NodeKind(99).String() = %q", got)
	}
}
