// Package voxgen procedurally generates volumetric (voxel) world data from a
// declarative scene description: a flattened tree of signed-distance-field
// primitives and operators, plus a layered set of material-classification
// rules ("brush layers").
//
// # Overview
//
// voxgen is a Pure Go voxel generation library designed to integrate with the
// GoGPU ecosystem. Generation runs as three data-parallel kernels in strict
// dependency order:
//
//  1. Evaluate: sample the SDF tree over the full chunk grid
//  2. Classify: turn distance, gradient and procedural signals into material IDs
//  3. Compress: bit-pack material IDs against a per-chunk palette
//
// A host-side Job sequences the kernels, owns the transient buffers, and
// splits classification across multiple calls so a large volume can be
// amortized over many frames without exceeding a per-call budget.
//
// # Quick Start
//
//	import "github.com/gogpu/voxgen"
//
//	tree := voxgen.NewTree()
//	ground := tree.AddPlane(mgl32.Vec3{0, 0, 1}, 0)
//	hill := tree.AddSphere(mgl32.Vec3{0, 0, -2}, 6)
//	tree.SetRoot(tree.AddSmoothUnion(ground, hill, 1.5))
//
//	brushes := voxgen.NewBrushSet()
//	rock := brushes.AddLayer(1, 1, 0)
//	brushes.AddCondition(rock, voxgen.CondDepth, 0, 0.1)
//	grass := brushes.AddLayer(2, 1, 1)
//	brushes.AddCondition(grass, voxgen.CondDepth, 0, 0.1)
//	brushes.AddCombinator(grass, voxgen.CondNot)
//	brushes.AddCondition(grass, voxgen.CondSlope, 0.2, 0.4) // flat ground only
//
//	chunk, err := voxgen.Generate(&voxgen.Request{
//	    Desc:    voxgen.ChunkDesc{BoundsMin: mgl32.Vec3{-8, -8, -8}, BoundsMax: mgl32.Vec3{8, 8, 8}, Resolution: [3]int{32, 32, 32}},
//	    Tree:    tree,
//	    Brushes: brushes,
//	})
//
// # Generators
//
// The root package includes a CPU reference generator that is always
// available. GPU generation via gogpu/wgpu compute shaders is enabled with
//
//	import _ "github.com/gogpu/voxgen/gpu"
//
// which registers a device-backed generator when one can be opened and
// falls back to the CPU path otherwise; both produce byte-identical packed
// output.
//
// # Coordinate System
//
// World coordinates are right-handed with Z up. Negative SDF values are
// inside solid matter, positive values outside. Grid voxels are sampled at
// cell centers, X varying fastest in memory.
//
// # Scheduling
//
// The unit of classification scheduling is the minichunk, a fixed 8x8x8 block
// of the output grid. Job.Run accepts an explicit (startUnit, maxUnits)
// resume token so independent generation jobs can be interleaved safely.
package voxgen

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
