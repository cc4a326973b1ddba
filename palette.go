package voxgen

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/voxgen/internal/parallel"
)

// Compressor errors.
var (
	// ErrPaletteMiss is returned when a material id has no palette entry.
	ErrPaletteMiss = errors.New("voxgen: material id missing from palette")

	// ErrPackedShape is returned when a packed buffer does not match its
	// declared bit width and voxel count.
	ErrPackedShape = errors.New("voxgen: packed buffer shape mismatch")
)

// Palette is the sorted list of distinct material ids in a chunk. Index 0 is
// whatever id sorts first; air carries no special slot.
type Palette []uint32

// PaletteLUT maps a material id to its palette index.
type PaletteLUT map[uint32]uint32

// BuildPalette scans a material buffer and returns its sorted distinct ids
// plus the reverse lookup table.
func BuildPalette(materials []uint32) (Palette, PaletteLUT) {
	lut := make(PaletteLUT)
	for _, m := range materials {
		if _, ok := lut[m]; !ok {
			lut[m] = 0
		}
	}
	pal := make(Palette, 0, len(lut))
	for m := range lut {
		pal = append(pal, m)
	}
	sort.Slice(pal, func(a, b int) bool { return pal[a] < pal[b] })
	for i, m := range pal {
		lut[m] = uint32(i)
	}
	return pal, lut
}

// BitsPerIndex returns the packed index width for a palette of the given
// size: the smallest width that can address every entry, never below one
// bit. A uniform chunk still spends one bit per voxel.
func BitsPerIndex(paletteSize int) int {
	bits := 1
	for (1 << bits) < paletteSize {
		bits++
	}
	return bits
}

// packAlign is the worker partition granularity for parallel packing: 32
// indices at b bits each fill exactly b output words, so partitions aligned
// to 32 indices write disjoint words and need no synchronization.
const packAlign = 32

// Pack bit-packs palette indices for the given materials, low bits first,
// with indices spanning word boundaries. The output holds
// ceil(len(materials)*bits/32) words.
func Pack(materials []uint32, lut PaletteLUT, bits int) ([]uint32, error) {
	if bits < 1 || bits > 32 {
		return nil, fmt.Errorf("%w: %d bits per index", ErrPackedShape, bits)
	}
	words := make([]uint32, (len(materials)*bits+31)/32)

	packRange := func(start, end int) error {
		for v := start; v < end; v++ {
			idx, ok := lut[materials[v]]
			if !ok {
				return fmt.Errorf("%w: id %d at voxel %d", ErrPaletteMiss, materials[v], v)
			}
			bit := v * bits
			word := bit / 32
			shift := uint(bit % 32)
			words[word] |= idx << shift
			if spill := shift + uint(bits); spill > 32 {
				words[word+1] |= idx >> (32 - shift)
			}
		}
		return nil
	}

	// Short buffers pack inline; the pool only pays off on full chunks.
	if len(materials) <= 4*packAlign {
		if err := packRange(0, len(materials)); err != nil {
			return nil, err
		}
		return words, nil
	}

	pool := parallel.NewWorkerPool(0)
	defer pool.Close()

	parts := pool.Workers()
	per := (len(materials)/parts + packAlign - 1) / packAlign * packAlign
	if per < packAlign {
		per = packAlign
	}
	errs := make([]error, (len(materials)+per-1)/per)
	work := make([]func(), 0, len(errs))
	for p := 0; p*per < len(materials); p++ {
		start := p * per
		end := start + per
		if end > len(materials) {
			end = len(materials)
		}
		work = append(work, func() { errs[p] = packRange(start, end) })
	}
	pool.ExecuteAll(work)

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return words, nil
}

// Unpack expands a packed index buffer back into material ids.
func Unpack(words []uint32, pal Palette, bits, count int) ([]uint32, error) {
	if bits < 1 || bits > 32 {
		return nil, fmt.Errorf("%w: %d bits per index", ErrPackedShape, bits)
	}
	if need := (count*bits + 31) / 32; len(words) < need {
		return nil, fmt.Errorf("%w: %d words, need %d", ErrPackedShape, len(words), need)
	}
	var mask uint32 = 0xFFFFFFFF
	if bits < 32 {
		mask = (1 << uint(bits)) - 1
	}
	out := make([]uint32, count)
	for v := 0; v < count; v++ {
		bit := v * bits
		word := bit / 32
		shift := uint(bit % 32)
		idx := words[word] >> shift
		if spill := shift + uint(bits); spill > 32 {
			idx |= words[word+1] << (32 - shift)
		}
		idx &= mask
		if int(idx) >= len(pal) {
			return nil, fmt.Errorf("%w: index %d outside palette of %d", ErrPackedShape, idx, len(pal))
		}
		out[v] = pal[idx]
	}
	return out, nil
}

// PackedChunk is the compressed form of one chunk's material buffer.
type PackedChunk struct {
	// Palette holds the chunk's distinct material ids, sorted ascending.
	Palette Palette

	// Bits is the packed index width.
	Bits int

	// Words is the bit-packed index stream, low bits first.
	Words []uint32

	// Count is the number of voxels encoded.
	Count int
}

// Compress builds a palette for the material buffer and bit-packs it.
func Compress(materials []uint32) (*PackedChunk, error) {
	pal, lut := BuildPalette(materials)
	bits := BitsPerIndex(len(pal))
	words, err := Pack(materials, lut, bits)
	if err != nil {
		return nil, err
	}
	return &PackedChunk{
		Palette: pal,
		Bits:    bits,
		Words:   words,
		Count:   len(materials),
	}, nil
}

// Decompress expands a packed chunk back into its material buffer.
func (pc *PackedChunk) Decompress() ([]uint32, error) {
	return Unpack(pc.Words, pc.Palette, pc.Bits, pc.Count)
}
