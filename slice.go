package voxgen

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// materialColor maps a material id to a stable debug color. Air is black;
// the error marker is magenta; everything else hashes to a bright hue.
func materialColor(m uint32) color.RGBA {
	switch m {
	case 0:
		return color.RGBA{A: 0xFF}
	case MaterialError:
		return color.RGBA{R: 0xFF, B: 0xFF, A: 0xFF}
	}
	h := m*2654435761 + 0x9E3779B9
	return color.RGBA{
		R: uint8(h>>16) | 0x40,
		G: uint8(h>>8) | 0x40,
		B: uint8(h) | 0x40,
		A: 0xFF,
	}
}

// SliceImage renders one horizontal slice (fixed k) of a material buffer as
// an RGBA image, one pixel per voxel.
func SliceImage(materials []uint32, desc ChunkDesc, k int) (*image.RGBA, error) {
	if k < 0 || k >= desc.Resolution[2] {
		return nil, fmt.Errorf("%w: slice %d of %d", ErrBounds, k, desc.Resolution[2])
	}
	img := image.NewRGBA(image.Rect(0, 0, desc.Resolution[0], desc.Resolution[1]))
	for j := 0; j < desc.Resolution[1]; j++ {
		for i := 0; i < desc.Resolution[0]; i++ {
			// Flip Y so +Y points up in the image.
			img.SetRGBA(i, desc.Resolution[1]-1-j, materialColor(materials[desc.Index(i, j, k)]))
		}
	}
	return img, nil
}

// SaveSlicePNG writes one material slice to a PNG file, upscaled by the
// given integer factor with nearest-neighbor sampling so voxel boundaries
// stay sharp.
func SaveSlicePNG(path string, materials []uint32, desc ChunkDesc, k, scale int) error {
	img, err := SliceImage(materials, desc, k)
	if err != nil {
		return err
	}
	if scale > 1 {
		b := img.Bounds()
		big := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		draw.NearestNeighbor.Scale(big, big.Bounds(), img, b, draw.Src, nil)
		img = big
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating slice image: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding slice image: %w", err)
	}
	return nil
}
