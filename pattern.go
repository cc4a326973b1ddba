package voxgen

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Procedural pattern sources used by brush conditions. Every function here
// has a WGSL mirror in internal/gpu/shaders/classify.wgsl; the two must stay
// bit-for-bit compatible so CPU and GPU classification agree.

// hash31 maps an integer lattice point to a deterministic value in [0, 1).
func hash31(x, y, z int32) float32 {
	h := uint32(x)*374761393 + uint32(y)*668265263 + uint32(z)*1274126177
	h ^= h >> 13
	h *= 1274126177
	h ^= h >> 16
	return float32(h>>8) / float32(1<<24)
}

// fade is the Hermite smoothing curve used for lattice interpolation.
func fade(t float32) float32 {
	return t * t * (3 - 2*t)
}

// valueNoise3 samples trilinearly interpolated lattice noise at p.
func valueNoise3(p mgl32.Vec3) float32 {
	fx := math32.Floor(p.X())
	fy := math32.Floor(p.Y())
	fz := math32.Floor(p.Z())
	ix, iy, iz := int32(fx), int32(fy), int32(fz)
	tx := fade(p.X() - fx)
	ty := fade(p.Y() - fy)
	tz := fade(p.Z() - fz)

	c000 := hash31(ix, iy, iz)
	c100 := hash31(ix+1, iy, iz)
	c010 := hash31(ix, iy+1, iz)
	c110 := hash31(ix+1, iy+1, iz)
	c001 := hash31(ix, iy, iz+1)
	c101 := hash31(ix+1, iy, iz+1)
	c011 := hash31(ix, iy+1, iz+1)
	c111 := hash31(ix+1, iy+1, iz+1)

	x00 := mix32(c000, c100, tx)
	x10 := mix32(c010, c110, tx)
	x01 := mix32(c001, c101, tx)
	x11 := mix32(c011, c111, tx)
	y0 := mix32(x00, x10, ty)
	y1 := mix32(x01, x11, ty)
	return mix32(y0, y1, tz)
}

// fractalNoise sums octaves of value noise with persistence 0.5 and
// lacunarity 2, normalized back to [0, 1].
func fractalNoise(p mgl32.Vec3, frequency float32, octaves int) float32 {
	if octaves < 1 {
		octaves = 1
	}
	var sum, amp, norm float32
	amp = 1
	freq := frequency
	for o := 0; o < octaves; o++ {
		sum += amp * valueNoise3(p.Mul(freq))
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / norm
}

// turbulence is fractal noise built from folded octaves: each octave
// contributes |2n-1|, giving the sharp ridges that plain fractal noise lacks.
func turbulence(p mgl32.Vec3, frequency float32, octaves int) float32 {
	if octaves < 1 {
		octaves = 1
	}
	var sum, amp, norm float32
	amp = 1
	freq := frequency
	for o := 0; o < octaves; o++ {
		sum += amp * math32.Abs(2*valueNoise3(p.Mul(freq))-1)
		norm += amp
		amp *= 0.5
		freq *= 2
	}
	return sum / norm
}

// voronoiCell returns the id hash of the nearest jittered feature point in a
// 3x3x3 cell neighborhood, as a value in [0, 1). Cell ids are stable under
// resampling so region masks derived from them do not flicker.
func voronoiCell(p mgl32.Vec3, frequency float32) float32 {
	q := p.Mul(frequency)
	ix := int32(math32.Floor(q.X()))
	iy := int32(math32.Floor(q.Y()))
	iz := int32(math32.Floor(q.Z()))

	best := float32(math.MaxFloat32)
	var bestID float32
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				cx, cy, cz := ix+dx, iy+dy, iz+dz
				// Feature point jittered inside its cell.
				fx := float32(cx) + hash31(cx, cy, cz)
				fy := float32(cy) + hash31(cy, cz, cx)
				fz := float32(cz) + hash31(cz, cx, cy)
				ddx := q.X() - fx
				ddy := q.Y() - fy
				ddz := q.Z() - fz
				d2 := ddx*ddx + ddy*ddy + ddz*ddz
				if d2 < best {
					best = d2
					bestID = hash31(cx^cy, cy^cz, cz^cx)
				}
			}
		}
	}
	return bestID
}

// checker returns the alternating 0/1 parity of the cell containing p at the
// given frequency.
func checker(p mgl32.Vec3, frequency float32) float32 {
	ix := int32(math32.Floor(p.X() * frequency))
	iy := int32(math32.Floor(p.Y() * frequency))
	iz := int32(math32.Floor(p.Z() * frequency))
	if (ix+iy+iz)&1 == 0 {
		return 0
	}
	return 1
}

// stripes returns a sinusoidal band pattern over height.
func stripes(z, frequency float32) float32 {
	return 0.5 + 0.5*math32.Sin(2*math.Pi*frequency*z)
}
