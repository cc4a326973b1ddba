// Command voxdemo generates a demo voxel chunk and writes material slices.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/voxgen"
	"github.com/gogpu/voxgen/internal/gpu"
)

func main() {
	var (
		res     = flag.Int("res", 64, "chunk resolution per axis")
		extent  = flag.Float64("extent", 16, "half-extent of the chunk in meters")
		budget  = flag.Int("budget", 0, "minichunks per simulated frame (0 = all at once)")
		output  = flag.String("output", "slice.png", "output file for the middle slice")
		scale   = flag.Int("scale", 4, "pixel scale of the slice image")
		useGPU  = flag.Bool("gpu", false, "generate on the GPU when a device is available")
		verbose = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		voxgen.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	if *useGPU {
		if err := gpu.Register(); err != nil {
			log.Printf("GPU unavailable, using CPU: %v", err)
		}
		defer voxgen.RegisterGenerator(nil)
	}

	req := demoRequest(*res, float32(*extent))
	job, err := voxgen.NewJob(req)
	if err != nil {
		log.Fatalf("Failed to start job: %v", err)
	}
	defer job.Close()

	units := req.Desc.MinichunkCount()
	per := *budget
	if per <= 0 {
		per = units
	}
	frames := 0
	for done := 0; done < units; frames++ {
		n, err := job.Run(done, per)
		if err != nil {
			log.Fatalf("Failed at unit %d: %v", done, err)
		}
		done += n
	}

	packed, err := job.Compress()
	if err != nil {
		log.Fatalf("Failed to compress: %v", err)
	}
	raw := packed.Count * 4
	bits := packed.Count * int(packed.Bits) / 8
	fmt.Printf("Generated %d voxels in %d frames (%d units)\n", packed.Count, frames, units)
	fmt.Printf("Palette: %d materials, %d bits/voxel, %d -> %d bytes (%.1fx)\n",
		len(packed.Palette), packed.Bits, raw, bits, float64(raw)/float64(bits))

	materials, err := job.Materials()
	if err != nil {
		log.Fatalf("Failed to read materials: %v", err)
	}
	if err := voxgen.SaveSlicePNG(*output, materials, req.Desc, *res/2, *scale); err != nil {
		log.Fatalf("Failed to save slice: %v", err)
	}
	log.Printf("Slice saved to %s\n", *output)
}

// demoRequest builds a rolling terrain with a carved cave, painted with
// stone, dirt, and a noisy grass topsoil.
func demoRequest(res int, extent float32) *voxgen.Request {
	tree := voxgen.NewTree()
	ground := tree.AddPlane(mgl32.Vec3{0, 0, 1}, 0)
	hillA := tree.AddSphere(mgl32.Vec3{-extent / 2, extent / 3, -1}, extent/3)
	hillB := tree.AddSphere(mgl32.Vec3{extent / 3, -extent / 4, -2}, extent/2.5)
	cave := tree.AddSphere(mgl32.Vec3{0, 0, -extent / 2}, extent/4)
	land := tree.AddSmoothUnion(ground, hillA, 1.5)
	land = tree.AddSmoothUnion(land, hillB, 1.5)
	tree.SetRoot(tree.AddSmoothDifference(land, cave, 0.8))

	set := voxgen.NewBrushSet()
	stone := set.AddLayer(1, 1, 0)
	mustCondition(set.AddCondition(stone, voxgen.CondDepth, 0, 0.1))

	dirt := set.AddLayer(2, 1, 5)
	mustCondition(set.AddCondition(dirt, voxgen.CondDepth, 0, 0.1))
	mustCondition(set.AddCombinator(dirt, voxgen.CondNot))
	mustCondition(set.AddCondition(dirt, voxgen.CondDepth, 2, 2.5))

	grass := set.AddLayer(3, 1, 10)
	mustCondition(set.AddCondition(grass, voxgen.CondDepth, 0, 0.1))
	mustCondition(set.AddCombinator(grass, voxgen.CondNot))
	mustCondition(set.AddCondition(grass, voxgen.CondDepth, 0.5, 0.8))
	mustCondition(set.AddConditionVec(grass, voxgen.CondNoise, 0.35, 0.6,
		mgl32.Vec4{0.4, 3, 0, 0}))

	return &voxgen.Request{
		Desc: voxgen.ChunkDesc{
			BoundsMin:  mgl32.Vec3{-extent, -extent, -extent},
			BoundsMax:  mgl32.Vec3{extent, extent, extent},
			Resolution: [3]int{res, res, res},
		},
		Tree:    tree,
		Brushes: set,
	}
}

func mustCondition(err error) {
	if err != nil {
		log.Fatalf("Bad brush set: %v", err)
	}
}
