package voxgen

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func testDesc(rx, ry, rz int) ChunkDesc {
	return ChunkDesc{
		BoundsMin:  mgl32.Vec3{-2, -2, -2},
		BoundsMax:  mgl32.Vec3{2, 2, 2},
		Resolution: [3]int{rx, ry, rz},
	}
}

func sphereTree(center mgl32.Vec3, radius float32) *Tree {
	tree := NewTree()
	tree.SetRoot(tree.AddSphere(center, radius))
	return tree
}

func TestChunkDescValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    ChunkDesc
		wantErr error
	}{
		{"valid", testDesc(8, 8, 8), nil},
		{
			"zero resolution",
			ChunkDesc{BoundsMin: mgl32.Vec3{0, 0, 0}, BoundsMax: mgl32.Vec3{1, 1, 1}, Resolution: [3]int{8, 0, 8}},
			ErrResolution,
		},
		{
			"inverted bounds",
			ChunkDesc{BoundsMin: mgl32.Vec3{1, 0, 0}, BoundsMax: mgl32.Vec3{0, 1, 1}, Resolution: [3]int{8, 8, 8}},
			ErrBounds,
		},
		{
			"flat bounds",
			ChunkDesc{BoundsMin: mgl32.Vec3{0, 0, 0}, BoundsMax: mgl32.Vec3{1, 1, 0}, Resolution: [3]int{8, 8, 8}},
			ErrBounds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChunkDescIndexing(t *testing.T) {
	desc := testDesc(4, 5, 6)

	if got := desc.VoxelCount(); got != 4*5*6 {
		t.Errorf("VoxelCount() = %d, want %d", got, 4*5*6)
	}

	// X varies fastest, then Y, then Z.
	if got := desc.Index(1, 0, 0); got != 1 {
		t.Errorf("Index(1,0,0) = %d, want 1", got)
	}
	if got := desc.Index(0, 1, 0); got != 4 {
		t.Errorf("Index(0,1,0) = %d, want 4", got)
	}
	if got := desc.Index(0, 0, 1); got != 20 {
		t.Errorf("Index(0,0,1) = %d, want 20", got)
	}

	seen := make(map[int]bool)
	for k := 0; k < 6; k++ {
		for j := 0; j < 5; j++ {
			for i := 0; i < 4; i++ {
				idx := desc.Index(i, j, k)
				if seen[idx] {
					t.Fatalf("Index(%d,%d,%d) = %d collides", i, j, k, idx)
				}
				seen[idx] = true
			}
		}
	}
}

func TestCellCenterSampling(t *testing.T) {
	desc := ChunkDesc{
		BoundsMin:  mgl32.Vec3{0, 0, 0},
		BoundsMax:  mgl32.Vec3{4, 4, 4},
		Resolution: [3]int{4, 4, 4},
	}

	// Voxel (0,0,0) samples at the center of its cell, not the corner.
	got := desc.CellCenter(0, 0, 0)
	want := mgl32.Vec3{0.5, 0.5, 0.5}
	if got.Sub(want).Len() > 1e-6 {
		t.Errorf("CellCenter(0,0,0) = %v, want %v", got, want)
	}
	got = desc.CellCenter(3, 3, 3)
	want = mgl32.Vec3{3.5, 3.5, 3.5}
	if got.Sub(want).Len() > 1e-6 {
		t.Errorf("CellCenter(3,3,3) = %v, want %v", got, want)
	}
}

func TestMinichunkDecomposition(t *testing.T) {
	tests := []struct {
		name      string
		res       [3]int
		wantGrid  [3]int
		wantCount int
	}{
		{"exact multiple", [3]int{16, 16, 16}, [3]int{2, 2, 2}, 8},
		{"single unit", [3]int{8, 8, 8}, [3]int{1, 1, 1}, 1},
		{"partial edge", [3]int{17, 8, 9}, [3]int{3, 1, 2}, 6},
		{"smaller than unit", [3]int{3, 3, 3}, [3]int{1, 1, 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := testDesc(tt.res[0], tt.res[1], tt.res[2])
			if got := desc.MinichunkGrid(); got != tt.wantGrid {
				t.Errorf("MinichunkGrid() = %v, want %v", got, tt.wantGrid)
			}
			if got := desc.MinichunkCount(); got != tt.wantCount {
				t.Errorf("MinichunkCount() = %d, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestMinichunkOrigin(t *testing.T) {
	desc := testDesc(16, 16, 16) // 2x2x2 units

	tests := []struct {
		unit    int
		i, j, k int
	}{
		{0, 0, 0, 0},
		{1, 8, 0, 0},
		{2, 0, 8, 0},
		{4, 0, 0, 8},
		{7, 8, 8, 8},
	}
	for _, tt := range tests {
		i, j, k := desc.MinichunkOrigin(tt.unit)
		if i != tt.i || j != tt.j || k != tt.k {
			t.Errorf("MinichunkOrigin(%d) = (%d,%d,%d), want (%d,%d,%d)",
				tt.unit, i, j, k, tt.i, tt.j, tt.k)
		}
	}
}

func TestEvaluateFieldMatchesDistance(t *testing.T) {
	tree := sphereTree(mgl32.Vec3{0, 0, 0}, 1.5)
	desc := testDesc(16, 16, 16)

	f, err := EvaluateField(tree, desc)
	if err != nil {
		t.Fatalf("EvaluateField: %v", err)
	}
	if len(f.Data) != desc.VoxelCount() {
		t.Fatalf("field size %d, want %d", len(f.Data), desc.VoxelCount())
	}

	for _, v := range [][3]int{{0, 0, 0}, {8, 8, 8}, {15, 15, 15}, {3, 12, 7}} {
		want, err := tree.Distance(desc.CellCenter(v[0], v[1], v[2]))
		if err != nil {
			t.Fatalf("Distance: %v", err)
		}
		got := f.At(v[0], v[1], v[2])
		if got != want {
			t.Errorf("field at %v = %g, want %g", v, got, want)
		}
	}
}

func TestEvaluateFieldRejectsBadInput(t *testing.T) {
	tree := sphereTree(mgl32.Vec3{}, 1)

	if _, err := EvaluateField(tree, ChunkDesc{}); !errors.Is(err, ErrResolution) {
		t.Errorf("empty desc: err = %v, want ErrResolution", err)
	}
	if _, err := EvaluateField(NewTree(), testDesc(8, 8, 8)); !errors.Is(err, ErrEmptyTree) {
		t.Errorf("empty tree: err = %v, want ErrEmptyTree", err)
	}
}

func TestGradientPointsOutward(t *testing.T) {
	tree := sphereTree(mgl32.Vec3{0, 0, 0}, 1.5)
	f, err := EvaluateField(tree, testDesc(32, 32, 32))
	if err != nil {
		t.Fatalf("EvaluateField: %v", err)
	}

	// Interior voxel on +X side of the sphere: gradient roughly +X, unit length.
	g := f.Gradient(24, 16, 16)
	if g.Len() < 0.9 || g.Len() > 1.1 {
		t.Errorf("gradient length = %g, want ~1", g.Len())
	}
	if g.X() <= 0 || math32.Abs(g.Y()) > 0.2 || math32.Abs(g.Z()) > 0.2 {
		t.Errorf("gradient = %v, want roughly +X", g)
	}
}

func TestGradientZeroAtBoundary(t *testing.T) {
	tree := sphereTree(mgl32.Vec3{0, 0, 0}, 1.5)
	f, err := EvaluateField(tree, testDesc(8, 8, 8))
	if err != nil {
		t.Fatalf("EvaluateField: %v", err)
	}

	zero := mgl32.Vec3{}
	for _, v := range [][3]int{{0, 4, 4}, {7, 4, 4}, {4, 0, 4}, {4, 4, 7}, {0, 0, 0}} {
		if g := f.Gradient(v[0], v[1], v[2]); g != zero {
			t.Errorf("Gradient%v = %v, want zero at boundary", v, g)
		}
	}
}
