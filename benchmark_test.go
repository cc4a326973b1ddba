package voxgen

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func benchTree() *Tree {
	tree := NewTree()
	ground := tree.AddPlane(mgl32.Vec3{0, 0, 1}, 0)
	hill := tree.AddSphere(mgl32.Vec3{2, 2, 0}, 3)
	cave := tree.AddSphere(mgl32.Vec3{0, 0, -4}, 2.5)
	land := tree.AddSmoothUnion(ground, hill, 0.5)
	tree.SetRoot(tree.AddSmoothDifference(land, cave, 0.3))
	return tree
}

func benchDesc(res int) ChunkDesc {
	return ChunkDesc{
		BoundsMin:  mgl32.Vec3{-8, -8, -8},
		BoundsMax:  mgl32.Vec3{8, 8, 8},
		Resolution: [3]int{res, res, res},
	}
}

func benchBrushes() *BrushSet {
	set := NewBrushSet()
	stone := set.AddLayer(1, 1, 0)
	_ = set.AddCondition(stone, CondDepth, 0, 0.1)
	dirt := set.AddLayer(2, 1, 5)
	_ = set.AddCondition(dirt, CondDepth, 0, 0.1)
	_ = set.AddConditionVec(dirt, CondNoise, 0.3, 0.7, mgl32.Vec4{0.5, 3, 0, 0})
	return set
}

// BenchmarkDistance benchmarks single-point evaluation of a five-node tree.
func BenchmarkDistance(b *testing.B) {
	tree := benchTree()
	p := mgl32.Vec3{0.7, -1.3, 0.2}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = tree.Distance(p)
	}
}

// BenchmarkEvaluateField benchmarks parallel field evaluation at various
// chunk resolutions.
func BenchmarkEvaluateField(b *testing.B) {
	tree := benchTree()

	for _, res := range []int{16, 32, 64} {
		b.Run(descName(res), func(b *testing.B) {
			desc := benchDesc(res)
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := EvaluateField(tree, desc); err != nil {
					b.Fatal(err)
				}
			}
			voxels := int64(res * res * res)
			b.SetBytes(voxels * 4)
		})
	}
}

// BenchmarkClassifyVoxel benchmarks per-voxel material resolution with a
// noise condition in play.
func BenchmarkClassifyVoxel(b *testing.B) {
	set := benchBrushes()
	pos := mgl32.Vec3{1.5, -0.5, -2}
	grad := mgl32.Vec3{0.1, 0, 0.99}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = ClassifyVoxel(pos, -0.3, grad, set)
	}
}

// BenchmarkCompress benchmarks palettization and bit-packing of a 32^3
// material buffer at various palette sizes.
func BenchmarkCompress(b *testing.B) {
	sizes := []struct {
		name      string
		materials int
	}{
		{"2_materials", 2},
		{"8_materials", 8},
		{"64_materials", 64},
	}

	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			materials := make([]uint32, 32*32*32)
			for i := range materials {
				materials[i] = uint32(i % size.materials)
			}
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Compress(materials); err != nil {
					b.Fatal(err)
				}
			}
			b.SetBytes(int64(len(materials)) * 4)
		})
	}
}

// BenchmarkGenerate benchmarks the full CPU pipeline.
func BenchmarkGenerate(b *testing.B) {
	for _, res := range []int{16, 32} {
		b.Run(descName(res), func(b *testing.B) {
			req := &Request{
				Desc:    benchDesc(res),
				Tree:    benchTree(),
				Brushes: benchBrushes(),
			}
			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Generate(req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func descName(res int) string {
	switch res {
	case 16:
		return "16x16x16"
	case 32:
		return "32x32x32"
	case 64:
		return "64x64x64"
	default:
		return "chunk"
	}
}
