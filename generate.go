package voxgen

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/voxgen/internal/parallel"
)

// Generation errors.
var (
	// ErrFallbackToCPU signals that a registered generator cannot serve a
	// request and the caller should use the CPU path instead. It is a
	// control-flow value, not a failure.
	ErrFallbackToCPU = errors.New("voxgen: fall back to CPU generation")

	// ErrJobClosed is returned when a job is used after Close.
	ErrJobClosed = errors.New("voxgen: job is closed")

	// ErrIncomplete is returned by Compress when scheduling units remain
	// unprocessed.
	ErrIncomplete = errors.New("voxgen: chunk not fully generated")

	// ErrUnitRange is returned for a run window outside the unit count.
	ErrUnitRange = errors.New("voxgen: scheduling unit out of range")
)

// Request describes one chunk generation: the volume, the distance tree
// defining geometry, and the brush set assigning materials.
type Request struct {
	Desc    ChunkDesc
	Tree    *Tree
	Brushes *BrushSet
}

// Validate checks the request's volume, tree, and brush set.
func (r *Request) Validate() error {
	if err := r.Desc.Validate(); err != nil {
		return err
	}
	if r.Tree == nil {
		return ErrEmptyTree
	}
	if err := r.Tree.Validate(); err != nil {
		return err
	}
	if r.Brushes == nil {
		return ErrNoLayers
	}
	return r.Brushes.Validate()
}

// Generator produces generation jobs. Implementations may hold long-lived
// device state; Close releases it.
type Generator interface {
	// Name identifies the implementation for logs.
	Name() string

	// NewJob prepares a job for one request. A generator that cannot serve
	// the request returns ErrFallbackToCPU.
	NewJob(req *Request) (Job, error)

	// Close releases generator resources.
	Close() error
}

// Job is one in-flight chunk generation. Work is metered in scheduling
// units (minichunks) so a caller can spread generation across frames: each
// Run processes at most maxUnits units and reports how many it consumed,
// and the job resumes where it left off on the next call. Jobs own their
// transient buffers and are not safe for concurrent use.
type Job interface {
	// Run processes up to maxUnits scheduling units starting at startUnit
	// and returns the number actually processed. The first Run also
	// evaluates the distance field over the whole chunk; that cost is not
	// metered in units.
	Run(startUnit, maxUnits int) (int, error)

	// Compress palettizes and bit-packs the material buffer. It fails with
	// ErrIncomplete until every unit has been processed.
	Compress() (*PackedChunk, error)

	// Materials returns the raw material buffer. Voxels in unprocessed
	// units are zero.
	Materials() ([]uint32, error)

	// Close releases the job's buffers.
	Close() error
}

var (
	genMu     sync.RWMutex
	activeGen Generator
)

// RegisterGenerator installs a generator for Generate and NewJob to try
// before the CPU path. Passing nil removes the current one. The previous
// generator, if any, is closed.
func RegisterGenerator(g Generator) {
	genMu.Lock()
	prev := activeGen
	activeGen = g
	genMu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			Logger().Warn("closing previous generator", "name", prev.Name(), "error", err)
		}
	}
	if g != nil {
		propagateLogger(g, Logger())
		Logger().Debug("generator registered", "name", g.Name())
	}
}

// ActiveGenerator returns the registered generator, or nil.
func ActiveGenerator() Generator {
	genMu.RLock()
	defer genMu.RUnlock()
	return activeGen
}

// NewJob prepares a job for the request, using the registered generator
// when one is installed and accepts it, otherwise the CPU path.
func NewJob(req *Request) (Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if g := ActiveGenerator(); g != nil {
		job, err := g.NewJob(req)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, ErrFallbackToCPU) {
			return nil, err
		}
		Logger().Debug("generator declined request", "name", g.Name())
	}
	return newCPUJob(req)
}

// Generate runs one request to completion and returns the packed chunk. It
// is the single-call path for callers that do not meter work across frames.
func Generate(req *Request) (*PackedChunk, error) {
	job, err := NewJob(req)
	if err != nil {
		return nil, err
	}
	defer job.Close()

	units := req.Desc.MinichunkCount()
	if _, err := job.Run(0, units); err != nil {
		return nil, err
	}
	return job.Compress()
}

// cpuGenerator is the built-in fallback. It has no device state; jobs carry
// everything.
type cpuGenerator struct{}

// NewCPUGenerator returns the built-in CPU generator. Callers normally do
// not need it directly; NewJob falls back to it on its own.
func NewCPUGenerator() Generator { return cpuGenerator{} }

func (cpuGenerator) Name() string { return "cpu" }

func (cpuGenerator) NewJob(req *Request) (Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return newCPUJob(req)
}

func (cpuGenerator) Close() error { return nil }

// cpuJob generates on the host. The distance field is evaluated once on the
// first Run; classification is metered per minichunk and parallelized
// within each Run window.
type cpuJob struct {
	req       *Request
	field     *Field
	materials []uint32
	done      []bool
	remaining int
	closed    bool
}

func newCPUJob(req *Request) (*cpuJob, error) {
	units := req.Desc.MinichunkCount()
	return &cpuJob{
		req:       req,
		materials: make([]uint32, req.Desc.VoxelCount()),
		done:      make([]bool, units),
		remaining: units,
	}, nil
}

func (j *cpuJob) Run(startUnit, maxUnits int) (int, error) {
	if j.closed {
		return 0, ErrJobClosed
	}
	units := len(j.done)
	if startUnit < 0 || startUnit >= units {
		return 0, fmt.Errorf("%w: start %d of %d", ErrUnitRange, startUnit, units)
	}
	if maxUnits <= 0 {
		return 0, nil
	}

	if j.field == nil {
		f, err := EvaluateField(j.req.Tree, j.req.Desc)
		if err != nil {
			return 0, err
		}
		j.field = f
	}

	end := startUnit + maxUnits
	if end > units {
		end = units
	}
	todo := make([]int, 0, end-startUnit)
	for u := startUnit; u < end; u++ {
		if !j.done[u] {
			todo = append(todo, u)
		}
	}
	if len(todo) == 0 {
		return 0, nil
	}

	// Units write disjoint minichunk regions of the material buffer.
	pool := parallel.NewWorkerPool(0)
	defer pool.Close()
	work := make([]func(), len(todo))
	for wi, u := range todo {
		work[wi] = func() {
			classifyUnit(j.field, j.req.Brushes, j.materials, u)
		}
	}
	pool.ExecuteAll(work)

	for _, u := range todo {
		j.done[u] = true
	}
	j.remaining -= len(todo)
	return len(todo), nil
}

func (j *cpuJob) Compress() (*PackedChunk, error) {
	if j.closed {
		return nil, ErrJobClosed
	}
	if j.remaining > 0 {
		return nil, fmt.Errorf("%w: %d units remaining", ErrIncomplete, j.remaining)
	}
	return Compress(j.materials)
}

func (j *cpuJob) Materials() ([]uint32, error) {
	if j.closed {
		return nil, ErrJobClosed
	}
	out := make([]uint32, len(j.materials))
	copy(out, j.materials)
	return out, nil
}

func (j *cpuJob) Close() error {
	j.closed = true
	j.field = nil
	j.materials = nil
	return nil
}
