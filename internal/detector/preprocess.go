package detector

import (
	"image"

	"github.com/dudu/facelive/internal/frame"
)

// preprocess letterboxes src into an inputSize x inputSize NCHW tensor.
// The picture is scaled to fit, anchored top-left, and the padding holds
// the normalised value of a black pixel.
func (d *Detector) preprocess(src frame.Source) ([]float32, float32) {
	size := d.cfg.InputSize
	width, height := src.Size()

	scale := float32(size) / float32(max(height, width))

	newWidth := min(int(float32(width)*scale), size)
	newHeight := min(int(float32(height)*scale), size)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	plane := size * size
	blob := make([]float32, 3*plane)

	norm := func(v float32, c int) float32 {
		return (v - d.cfg.Mean[c]) * d.cfg.Scale[c]
	}
	for c := 0; c < 3; c++ {
		pad := norm(0, c)
		for i := c * plane; i < (c+1)*plane; i++ {
			blob[i] = pad
		}
	}

	clip := image.Rect(0, 0, width, height)
	inv := 1 / float64(scale)
	for y := 0; y < newHeight; y++ {
		fy := (float64(y) + 0.5) * inv
		for x := 0; x < newWidth; x++ {
			fx := (float64(x) + 0.5) * inv
			b, g, r := frame.Sample(src, fx, fy, clip)
			c0, c2 := r, b
			if d.cfg.BGR {
				c0, c2 = b, r
			}
			idx := y*size + x
			blob[idx] = norm(c0, 0)
			blob[plane+idx] = norm(g, 1)
			blob[2*plane+idx] = norm(c2, 2)
		}
	}

	return blob, scale
}
