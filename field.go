package voxgen

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/voxgen/internal/parallel"
)

// Field errors.
var (
	// ErrResolution is returned for a non-positive grid resolution.
	ErrResolution = errors.New("voxgen: resolution must be positive on every axis")

	// ErrBounds is returned when chunk bounds are degenerate.
	ErrBounds = errors.New("voxgen: bounds max must exceed bounds min on every axis")
)

// MinichunkSize is the edge length of the fixed scheduling unit: every
// minichunk is an 8x8x8 block of the output grid. Classification is chunked
// by minichunks; the distance field is not (it is evaluated over the full
// chunk and shared across minichunks).
const MinichunkSize = 8

// MinichunkVoxels is the voxel count of one full minichunk.
const MinichunkVoxels = MinichunkSize * MinichunkSize * MinichunkSize

// ChunkDesc describes one generation volume: world-space bounds and grid
// resolution. Voxels are sampled at cell centers with X varying fastest.
type ChunkDesc struct {
	// BoundsMin and BoundsMax are the world-space corners of the volume.
	BoundsMin, BoundsMax mgl32.Vec3

	// Resolution is the voxel grid size per axis.
	Resolution [3]int
}

// Validate checks that the descriptor describes a non-degenerate volume.
func (d *ChunkDesc) Validate() error {
	for a := 0; a < 3; a++ {
		if d.Resolution[a] <= 0 {
			return fmt.Errorf("%w: got %v", ErrResolution, d.Resolution)
		}
		if d.BoundsMax[a] <= d.BoundsMin[a] {
			return fmt.Errorf("%w: got min %v max %v", ErrBounds, d.BoundsMin, d.BoundsMax)
		}
	}
	return nil
}

// VoxelCount returns the total number of voxels in the grid.
func (d *ChunkDesc) VoxelCount() int {
	return d.Resolution[0] * d.Resolution[1] * d.Resolution[2]
}

// VoxelSize returns the world-space extent of one voxel cell.
func (d *ChunkDesc) VoxelSize() mgl32.Vec3 {
	ext := d.BoundsMax.Sub(d.BoundsMin)
	return mgl32.Vec3{
		ext.X() / float32(d.Resolution[0]),
		ext.Y() / float32(d.Resolution[1]),
		ext.Z() / float32(d.Resolution[2]),
	}
}

// CellCenter returns the world-space sample position of voxel (i, j, k).
func (d *ChunkDesc) CellCenter(i, j, k int) mgl32.Vec3 {
	vs := d.VoxelSize()
	return mgl32.Vec3{
		d.BoundsMin.X() + (float32(i)+0.5)*vs.X(),
		d.BoundsMin.Y() + (float32(j)+0.5)*vs.Y(),
		d.BoundsMin.Z() + (float32(k)+0.5)*vs.Z(),
	}
}

// Index returns the linear buffer index of voxel (i, j, k).
func (d *ChunkDesc) Index(i, j, k int) int {
	return (k*d.Resolution[1]+j)*d.Resolution[0] + i
}

// MinichunkGrid returns the number of minichunks per axis (rounded up; edge
// minichunks may be partially outside the grid and are clipped during
// classification).
func (d *ChunkDesc) MinichunkGrid() [3]int {
	return [3]int{
		(d.Resolution[0] + MinichunkSize - 1) / MinichunkSize,
		(d.Resolution[1] + MinichunkSize - 1) / MinichunkSize,
		(d.Resolution[2] + MinichunkSize - 1) / MinichunkSize,
	}
}

// MinichunkCount returns the total number of scheduling units for the grid.
func (d *ChunkDesc) MinichunkCount() int {
	g := d.MinichunkGrid()
	return g[0] * g[1] * g[2]
}

// MinichunkOrigin returns the voxel coordinate of the first voxel of the
// given scheduling unit. Units are numbered with the X axis varying fastest,
// matching voxel buffer order.
func (d *ChunkDesc) MinichunkOrigin(unit int) (i, j, k int) {
	g := d.MinichunkGrid()
	cx := unit % g[0]
	cy := (unit / g[0]) % g[1]
	cz := unit / (g[0] * g[1])
	return cx * MinichunkSize, cy * MinichunkSize, cz * MinichunkSize
}

// MinichunkBounds returns the world-space bounds of the given scheduling
// unit, derived from the chunk bounds and the unit's grid coordinate.
func (d *ChunkDesc) MinichunkBounds(unit int) (bmin, bmax mgl32.Vec3) {
	oi, oj, ok := d.MinichunkOrigin(unit)
	vs := d.VoxelSize()
	bmin = mgl32.Vec3{
		d.BoundsMin.X() + float32(oi)*vs.X(),
		d.BoundsMin.Y() + float32(oj)*vs.Y(),
		d.BoundsMin.Z() + float32(ok)*vs.Z(),
	}
	bmax = mgl32.Vec3{
		bmin.X() + MinichunkSize*vs.X(),
		bmin.Y() + MinichunkSize*vs.Y(),
		bmin.Z() + MinichunkSize*vs.Z(),
	}
	return bmin, bmax
}

// Field is a dense signed-distance grid over one chunk. It is transient
// state owned by the generation job that allocated it.
type Field struct {
	Desc ChunkDesc
	Data []float32
}

// EvaluateField samples the tree over the full grid in one pass. This stage
// is never chunked: classification reads neighbor samples for gradients, so
// the whole field must exist before any minichunk classifies.
func EvaluateField(t *Tree, desc ChunkDesc) (*Field, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	f := &Field{
		Desc: desc,
		Data: make([]float32, desc.VoxelCount()),
	}

	nodes := t.nodes
	root := t.root

	// One work item per Z slab. Work items write disjoint buffer regions.
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()

	var (
		errMu   sync.Mutex
		evalErr error
	)
	work := make([]func(), desc.Resolution[2])
	for k := 0; k < desc.Resolution[2]; k++ {
		work[k] = func() {
			for j := 0; j < desc.Resolution[1]; j++ {
				for i := 0; i < desc.Resolution[0]; i++ {
					d, err := evalDistance(nodes, root, desc.CellCenter(i, j, k))
					if err != nil {
						errMu.Lock()
						if evalErr == nil {
							evalErr = err
						}
						errMu.Unlock()
						return
					}
					f.Data[desc.Index(i, j, k)] = d
				}
			}
		}
	}
	pool.ExecuteAll(work)

	if evalErr != nil {
		return nil, evalErr
	}
	return f, nil
}

// At returns the stored distance at voxel (i, j, k).
func (f *Field) At(i, j, k int) float32 {
	return f.Data[f.Desc.Index(i, j, k)]
}

// Gradient returns the local gradient at voxel (i, j, k) via central
// differences against neighboring samples, scaled by the voxel size. At any
// grid boundary, where a neighbor sample is unavailable, the gradient is the
// zero vector; NaN never propagates downstream.
func (f *Field) Gradient(i, j, k int) mgl32.Vec3 {
	r := f.Desc.Resolution
	if i <= 0 || j <= 0 || k <= 0 || i >= r[0]-1 || j >= r[1]-1 || k >= r[2]-1 {
		return mgl32.Vec3{}
	}
	vs := f.Desc.VoxelSize()
	return mgl32.Vec3{
		(f.At(i+1, j, k) - f.At(i-1, j, k)) / (2 * vs.X()),
		(f.At(i, j+1, k) - f.At(i, j-1, k)) / (2 * vs.Y()),
		(f.At(i, j, k+1) - f.At(i, j, k-1)) / (2 * vs.Z()),
	}
}
