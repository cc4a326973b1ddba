package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/voxgen"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Device-side errors.
var (
	// ErrNoBackend is returned when no usable GPU backend or adapter exists.
	ErrNoBackend = errors.New("gpu: no usable GPU backend")

	// ErrDeviceLost is returned when a fence wait times out or fails.
	ErrDeviceLost = errors.New("gpu: device did not complete work")
)

const fenceTimeout = 5 * time.Second

// maxLutMaterial bounds the direct-indexed pack table. Chunks authored with
// larger material ids fall back to host-side packing.
const maxLutMaterial = 1 << 20

// pipeline bundles the hal objects of one compute kernel.
type pipeline struct {
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	compute    hal.ComputePipeline
}

// Generator generates chunks on the GPU. It owns a device and one pipeline
// per kernel; jobs own their transient buffers. A Generator is safe for
// concurrent use, but each Job is not.
type Generator struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	fieldPipe    pipeline
	classifyPipe pipeline
	packPipe     pipeline

	logger *slog.Logger
	ready  bool
}

var _ voxgen.Generator = (*Generator)(nil)

// New opens a GPU device and builds the compute pipelines. The returned
// generator is ready to produce jobs; callers pass it to
// voxgen.RegisterGenerator or use Register.
func New() (*Generator, error) {
	g := &Generator{logger: voxgen.Logger()}
	if err := g.init(); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// Register opens a device and installs the generator as the active one.
// On failure the CPU path stays in place and the error is returned.
func Register() error {
	g, err := New()
	if err != nil {
		return err
	}
	voxgen.RegisterGenerator(g)
	return nil
}

func (g *Generator) Name() string { return "gpu" }

// SetLogger updates the logger; voxgen.SetLogger propagates here through
// the registration hook.
func (g *Generator) SetLogger(l *slog.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l != nil {
		g.logger = l
	}
}

func (g *Generator) init() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("%w: vulkan backend not available", ErrNoBackend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	g.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("%w: no adapters found", ErrNoBackend)
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	g.device = openDev.Device
	g.queue = openDev.Queue

	if err := g.createPipelines(); err != nil {
		return err
	}
	g.ready = true
	g.logger.Info("GPU generator initialized", "adapter", selected.Info.Name)
	return nil
}

func (g *Generator) createPipelines() error {
	storageRO := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	storageRW := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	uniform := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}

	var err error
	g.fieldPipe, err = g.buildPipeline("sdf_eval", sdfEvalShaderWGSL, []gputypes.BindGroupLayoutEntry{
		{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: uniform},
		{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: storageRO},
		{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: storageRW},
	})
	if err != nil {
		return err
	}

	g.classifyPipe, err = g.buildPipeline("classify", classifyShaderWGSL, []gputypes.BindGroupLayoutEntry{
		{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: uniform},
		{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: storageRO},
		{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: storageRO},
		{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: storageRO},
		{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: storageRW},
	})
	if err != nil {
		return err
	}

	g.packPipe, err = g.buildPipeline("palette_pack", palettePackShaderWGSL, []gputypes.BindGroupLayoutEntry{
		{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: uniform},
		{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: storageRO},
		{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: storageRO},
		{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: storageRW},
	})
	return err
}

func (g *Generator) buildPipeline(name, src string, entries []gputypes.BindGroupLayoutEntry) (pipeline, error) {
	var p pipeline
	shader, err := g.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return p, fmt.Errorf("compile %s shader: %w", name, err)
	}
	p.shader = shader

	p.bindLayout, err = g.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   name + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return p, fmt.Errorf("create %s bind group layout: %w", name, err)
	}

	p.pipeLayout, err = g.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return p, fmt.Errorf("create %s pipeline layout: %w", name, err)
	}

	p.compute, err = g.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   name + "_pipeline",
		Layout:  p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		return p, fmt.Errorf("create %s compute pipeline: %w", name, err)
	}
	return p, nil
}

func (g *Generator) destroyPipeline(p *pipeline) {
	if g.device == nil {
		return
	}
	if p.compute != nil {
		g.device.DestroyComputePipeline(p.compute)
	}
	if p.pipeLayout != nil {
		g.device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		g.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.shader != nil {
		g.device.DestroyShaderModule(p.shader)
	}
	*p = pipeline{}
}

// Close releases the pipelines and the device.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.destroyPipeline(&g.fieldPipe)
	g.destroyPipeline(&g.classifyPipe)
	g.destroyPipeline(&g.packPipe)
	if g.device != nil {
		g.device.Destroy()
		g.device = nil
	}
	if g.instance != nil {
		g.instance.Destroy()
		g.instance = nil
	}
	g.queue = nil
	g.ready = false
	return nil
}

// NewJob uploads the request's tree and brush set and prepares device
// buffers for the chunk. It returns voxgen.ErrFallbackToCPU when the device
// is not ready.
func (g *Generator) NewJob(req *voxgen.Request) (voxgen.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return nil, voxgen.ErrFallbackToCPU
	}

	j := &job{gen: g, req: req}
	if err := j.createBuffers(); err != nil {
		j.Close()
		g.logger.Warn("GPU job setup failed", "error", err)
		return nil, voxgen.ErrFallbackToCPU
	}

	units := req.Desc.MinichunkCount()
	j.done = make([]bool, units)
	j.remaining = units
	return j, nil
}

// job is one in-flight GPU chunk generation.
type job struct {
	gen *Generator
	req *voxgen.Request

	nodesBuf     hal.Buffer
	layersBuf    hal.Buffer
	instrBuf     hal.Buffer
	fieldBuf     hal.Buffer
	materialsBuf hal.Buffer

	nodesSize     uint64
	layersSize    uint64
	instrSize     uint64
	fieldSize     uint64
	materialsSize uint64

	fieldDone bool
	done      []bool
	remaining int
	closed    bool
}

func (j *job) createBuffers() error {
	g := j.gen
	desc := &j.req.Desc

	nodes := j.req.Tree.Nodes()
	gpuNodes := make([]gpuSDFNode, len(nodes))
	for i, n := range nodes {
		gpuNodes[i] = gpuSDFNode{
			Tag:   uint32(n.Kind),
			P0:    n.Params[0],
			P1:    n.Params[1],
			P2:    n.Params[2],
			P3:    n.Params[3],
			Left:  n.Left,
			Right: n.Right,
		}
	}

	layers := j.req.Brushes.Layers
	gpuLayers := make([]gpuBrushLayer, len(layers))
	for i, l := range layers {
		gpuLayers[i] = gpuBrushLayer{
			CondStart:   l.CondStart,
			CondCount:   l.CondCount,
			Material:    l.Material,
			BlendWeight: l.BlendWeight,
			Priority:    l.Priority,
		}
	}

	instrs := j.req.Brushes.Instructions
	gpuInstrs := make([]gpuBrushInstruction, len(instrs))
	for i, ins := range instrs {
		gpuInstrs[i] = gpuBrushInstruction{
			Op: uint32(ins.Op),
			P0: ins.Params[0],
			P1: ins.Params[1],
		}
	}
	if len(gpuInstrs) == 0 {
		// Storage bindings need a non-empty buffer even when no layer has
		// conditions.
		gpuInstrs = make([]gpuBrushInstruction, 1)
	}

	voxels := desc.VoxelCount()
	j.fieldSize = uint64(voxels) * 4
	j.materialsSize = uint64(voxels) * 4

	nodesBytes := sliceBytes(gpuNodes)
	layersBytes := sliceBytes(gpuLayers)
	instrBytes := sliceBytes(gpuInstrs)
	j.nodesSize = uint64(len(nodesBytes))
	j.layersSize = uint64(len(layersBytes))
	j.instrSize = uint64(len(instrBytes))

	var err error
	if j.nodesBuf, err = j.uploadStorage("voxgen_nodes", nodesBytes); err != nil {
		return err
	}
	if j.layersBuf, err = j.uploadStorage("voxgen_layers", layersBytes); err != nil {
		return err
	}
	if j.instrBuf, err = j.uploadStorage("voxgen_instructions", instrBytes); err != nil {
		return err
	}

	j.fieldBuf, err = g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "voxgen_field", Size: j.fieldSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create field buffer: %w", err)
	}
	j.materialsBuf, err = g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "voxgen_materials", Size: j.materialsSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create materials buffer: %w", err)
	}
	// Unprocessed units must read back as material 0.
	g.queue.WriteBuffer(j.materialsBuf, 0, make([]byte, j.materialsSize))
	return nil
}

func (j *job) uploadStorage(label string, data []byte) (hal.Buffer, error) {
	buf, err := j.gen.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: uint64(len(data)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	j.gen.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

// Run dispatches the field kernel on first use, then one classify pass for
// the requested unit window. Both stages share a command encoder per call;
// the pass boundary provides the field-to-classify visibility barrier.
func (j *job) Run(startUnit, maxUnits int) (int, error) {
	if j.closed {
		return 0, voxgen.ErrJobClosed
	}
	units := len(j.done)
	if startUnit < 0 || startUnit >= units {
		return 0, fmt.Errorf("%w: start %d of %d", voxgen.ErrUnitRange, startUnit, units)
	}
	if maxUnits <= 0 {
		return 0, nil
	}
	end := startUnit + maxUnits
	if end > units {
		end = units
	}

	if err := j.dispatch(startUnit, end-startUnit); err != nil {
		return 0, err
	}
	j.fieldDone = true

	processed := 0
	for u := startUnit; u < end; u++ {
		if !j.done[u] {
			j.done[u] = true
			processed++
		}
	}
	j.remaining -= processed
	return processed, nil
}

func (j *job) dispatch(startUnit, unitCount int) error {
	g := j.gen
	desc := &j.req.Desc
	grid := desc.MinichunkGrid()

	fieldParams := gpuFieldParams{
		BoundsMin:  vec4(desc.BoundsMin),
		VoxelSize:  vec4(desc.VoxelSize()),
		Resolution: [4]uint32{uint32(desc.Resolution[0]), uint32(desc.Resolution[1]), uint32(desc.Resolution[2]), uint32(j.req.Tree.Root())},
	}
	classifyParams := gpuClassifyParams{
		BoundsMin:  fieldParams.BoundsMin,
		VoxelSize:  fieldParams.VoxelSize,
		Resolution: [4]uint32{fieldParams.Resolution[0], fieldParams.Resolution[1], fieldParams.Resolution[2], uint32(len(j.req.Brushes.Layers))},
		Window:     [4]uint32{uint32(startUnit), uint32(unitCount), uint32(grid[0]), uint32(grid[1])},
	}

	fieldUB, err := j.uploadUniform("voxgen_field_params", structBytes(&fieldParams))
	if err != nil {
		return err
	}
	defer g.device.DestroyBuffer(fieldUB)
	classifyUB, err := j.uploadUniform("voxgen_classify_params", structBytes(&classifyParams))
	if err != nil {
		return err
	}
	defer g.device.DestroyBuffer(classifyUB)

	fieldBG, err := g.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "voxgen_field_bind", Layout: g.fieldPipe.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: fieldUB.NativeHandle(), Offset: 0, Size: uint64(len(structBytes(&fieldParams)))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: j.nodesBuf.NativeHandle(), Offset: 0, Size: j.nodesSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: j.fieldBuf.NativeHandle(), Offset: 0, Size: j.fieldSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create field bind group: %w", err)
	}
	defer g.device.DestroyBindGroup(fieldBG)

	classifyBG, err := g.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "voxgen_classify_bind", Layout: g.classifyPipe.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: classifyUB.NativeHandle(), Offset: 0, Size: uint64(len(structBytes(&classifyParams)))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: j.layersBuf.NativeHandle(), Offset: 0, Size: j.layersSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: j.instrBuf.NativeHandle(), Offset: 0, Size: j.instrSize}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: j.fieldBuf.NativeHandle(), Offset: 0, Size: j.fieldSize}},
			{Binding: 4, Resource: gputypes.BufferBinding{Buffer: j.materialsBuf.NativeHandle(), Offset: 0, Size: j.materialsSize}},
		},
	})
	if err != nil {
		return fmt.Errorf("create classify bind group: %w", err)
	}
	defer g.device.DestroyBindGroup(classifyBG)

	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "voxgen_run"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("voxgen_run"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	// One pass per stage. The pass boundary is the storage barrier that
	// makes field writes visible to classify reads.
	if !j.fieldDone {
		voxels := uint32(desc.VoxelCount())
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "voxgen_field"})
		pass.SetPipeline(g.fieldPipe.compute)
		pass.SetBindGroup(0, fieldBG, nil)
		pass.Dispatch((voxels+63)/64, 1, 1)
		pass.End()
	}

	threads := uint32(unitCount) * voxgen.MinichunkVoxels
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "voxgen_classify"})
	pass.SetPipeline(g.classifyPipe.compute)
	pass.SetBindGroup(0, classifyBG, nil)
	pass.Dispatch((threads+63)/64, 1, 1)
	pass.End()

	return j.submitEncoder(encoder)
}

// Compress reads the material buffer back, builds the palette on the host,
// and packs indices with the pack kernel. Oversized material ids fall back
// to host packing.
func (j *job) Compress() (*voxgen.PackedChunk, error) {
	if j.closed {
		return nil, voxgen.ErrJobClosed
	}
	if j.remaining > 0 {
		return nil, fmt.Errorf("%w: %d units remaining", voxgen.ErrIncomplete, j.remaining)
	}

	materials, err := j.Materials()
	if err != nil {
		return nil, err
	}
	pal, lut := voxgen.BuildPalette(materials)
	bits := voxgen.BitsPerIndex(len(pal))

	if pal[len(pal)-1] >= maxLutMaterial {
		j.gen.logger.Debug("material ids exceed pack table, packing on host")
		words, err := voxgen.Pack(materials, lut, bits)
		if err != nil {
			return nil, err
		}
		return &voxgen.PackedChunk{Palette: pal, Bits: bits, Words: words, Count: len(materials)}, nil
	}

	words, err := j.packOnDevice(materials, pal, lut, bits)
	if err != nil {
		return nil, err
	}
	return &voxgen.PackedChunk{Palette: pal, Bits: bits, Words: words, Count: len(materials)}, nil
}

func (j *job) packOnDevice(materials []uint32, pal voxgen.Palette, lut voxgen.PaletteLUT, bits int) ([]uint32, error) {
	g := j.gen

	table := make([]uint32, pal[len(pal)-1]+1)
	for i := range table {
		table[i] = lutAbsent
	}
	for id, idx := range lut {
		table[id] = idx
	}

	wordCount := (len(materials)*bits + 31) / 32
	packedSize := uint64(wordCount) * 4

	lutBuf, err := j.uploadStorage("voxgen_pack_lut", sliceBytes(table))
	if err != nil {
		return nil, err
	}
	defer g.device.DestroyBuffer(lutBuf)

	packedBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "voxgen_packed", Size: packedSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create packed buffer: %w", err)
	}
	defer g.device.DestroyBuffer(packedBuf)
	g.queue.WriteBuffer(packedBuf, 0, make([]byte, packedSize))

	params := gpuPackParams{
		VoxelCount: uint32(len(materials)),
		Bits:       uint32(bits),
		LutSize:    uint32(len(table)),
	}
	paramsUB, err := j.uploadUniform("voxgen_pack_params", structBytes(&params))
	if err != nil {
		return nil, err
	}
	defer g.device.DestroyBuffer(paramsUB)

	bg, err := g.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "voxgen_pack_bind", Layout: g.packPipe.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramsUB.NativeHandle(), Offset: 0, Size: uint64(len(structBytes(&params)))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: j.materialsBuf.NativeHandle(), Offset: 0, Size: j.materialsSize}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: lutBuf.NativeHandle(), Offset: 0, Size: uint64(len(table)) * 4}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: packedBuf.NativeHandle(), Offset: 0, Size: packedSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create pack bind group: %w", err)
	}
	defer g.device.DestroyBindGroup(bg)

	stagingBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "voxgen_pack_staging", Size: packedSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer g.device.DestroyBuffer(stagingBuf)

	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "voxgen_pack"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("voxgen_pack"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "voxgen_pack"})
	pass.SetPipeline(g.packPipe.compute)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch((uint32(len(materials))+63)/64, 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(packedBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: packedSize},
	})
	if err := j.submitEncoder(encoder); err != nil {
		return nil, err
	}

	readback := make([]byte, packedSize)
	if err := g.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback packed: %w", err)
	}
	return bytesToWords(readback), nil
}

// Materials copies the material buffer back to the host.
func (j *job) Materials() ([]uint32, error) {
	if j.closed {
		return nil, voxgen.ErrJobClosed
	}
	g := j.gen

	stagingBuf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "voxgen_materials_staging", Size: j.materialsSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer g.device.DestroyBuffer(stagingBuf)

	encoder, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "voxgen_readback"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("voxgen_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(j.materialsBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: j.materialsSize},
	})
	if err := j.submitEncoder(encoder); err != nil {
		return nil, err
	}

	readback := make([]byte, j.materialsSize)
	if err := g.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback materials: %w", err)
	}
	return bytesToWords(readback), nil
}

// Close destroys the job's device buffers.
func (j *job) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	g := j.gen
	for _, buf := range []hal.Buffer{j.nodesBuf, j.layersBuf, j.instrBuf, j.fieldBuf, j.materialsBuf} {
		if buf != nil {
			g.device.DestroyBuffer(buf)
		}
	}
	j.nodesBuf, j.layersBuf, j.instrBuf, j.fieldBuf, j.materialsBuf = nil, nil, nil, nil, nil
	return nil
}

func (j *job) uploadUniform(label string, data []byte) (hal.Buffer, error) {
	buf, err := j.gen.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: uint64(len(data)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	j.gen.queue.WriteBuffer(buf, 0, data)
	return buf, nil
}

func (j *job) submitEncoder(encoder hal.CommandEncoder) error {
	g := j.gen
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer g.device.FreeCommandBuffer(cmdBuf)

	fence, err := g.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer g.device.DestroyFence(fence)

	if err := g.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := g.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}
	if !ok {
		return ErrDeviceLost
	}
	return nil
}

func vec4(v [3]float32) [4]float32 {
	return [4]float32{v[0], v[1], v[2], 0}
}

func bytesToWords(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
	}
	return out
}
