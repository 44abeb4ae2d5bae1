package liveness

import (
	"image"
	"math"

	"github.com/dudu/facelive/internal/frame"
)

// Preprocessor turns a frame and a face box into one sub-model input:
// a Width x Height BGR tensor in NCHW order with raw 0-255 values.
type Preprocessor interface {
	Prepare(src frame.Source, box image.Rectangle) []float32
}

// NewPreprocessor picks the strategy named by cfg.OrgResize
func NewPreprocessor(cfg ModelConfig) Preprocessor {
	if cfg.OrgResize {
		return ResizeFrameThenCrop{cfg: cfg}
	}
	return CropThenResize{cfg: cfg}
}

// CropThenResize cuts the expanded box out of the frame and resizes the
// patch. Samples at the patch border repeat the border pixels.
type CropThenResize struct {
	cfg ModelConfig
}

func (p CropThenResize) Prepare(src frame.Source, box image.Rectangle) []float32 {
	w, h := src.Size()
	rect := expandBox(box, w, h, p.cfg)

	sx := float64(rect.Dx()) / float64(p.cfg.Width)
	sy := float64(rect.Dy()) / float64(p.cfg.Height)

	return fill(p.cfg.Width, p.cfg.Height, func(x, y int) (float32, float32, float32) {
		fx := float64(rect.Min.X) + (float64(x)+0.5)*sx
		fy := float64(rect.Min.Y) + (float64(y)+0.5)*sy
		return frame.Sample(src, fx, fy, rect)
	})
}

// ResizeFrameThenCrop resizes the whole frame so the expanded box becomes
// Width x Height, then crops that window. Border samples read the real
// neighbouring pixels of the frame. Only the cropped window is computed;
// the values equal those of a full-frame resize.
type ResizeFrameThenCrop struct {
	cfg ModelConfig
}

func (p ResizeFrameThenCrop) Prepare(src frame.Source, box image.Rectangle) []float32 {
	w, h := src.Size()
	rect := expandBox(box, w, h, p.cfg)

	fx := float64(p.cfg.Width) / float64(rect.Dx())
	fy := float64(p.cfg.Height) / float64(rect.Dy())

	// Resized frame size and the crop origin inside it
	rw := max(int(math.Round(float64(w)*fx)), 1)
	rh := max(int(math.Round(float64(h)*fy)), 1)
	ox := clampInt(int(math.Round(float64(rect.Min.X)*fx)), 0, max(rw-p.cfg.Width, 0))
	oy := clampInt(int(math.Round(float64(rect.Min.Y)*fy)), 0, max(rh-p.cfg.Height, 0))

	sx := float64(w) / float64(rw)
	sy := float64(h) / float64(rh)
	full := frame.Bounds(src)

	return fill(p.cfg.Width, p.cfg.Height, func(x, y int) (float32, float32, float32) {
		px := (float64(ox+x) + 0.5) * sx
		py := (float64(oy+y) + 0.5) * sy
		return frame.Sample(src, px, py, full)
	})
}

// expandBox grows box by cfg.Scale around its centre (capped so it fits
// the frame), shifts it by ShiftX/ShiftY box sizes and slides it back
// inside the frame.
func expandBox(box image.Rectangle, w, h int, cfg ModelConfig) image.Rectangle {
	x, y := box.Min.X, box.Min.Y
	boxWidth := max(box.Dx(), 1)
	boxHeight := max(box.Dy(), 1)

	shiftX := int(float32(boxWidth) * cfg.ShiftX)
	shiftY := int(float32(boxHeight) * cfg.ShiftY)

	scale := min(cfg.Scale, min(float32(w-1)/float32(boxWidth), float32(h-1)/float32(boxHeight)))

	centerX := boxWidth/2 + x
	centerY := boxHeight/2 + y

	newWidth := max(int(float32(boxWidth)*scale), 1)
	newHeight := max(int(float32(boxHeight)*scale), 1)

	left := centerX - newWidth/2 + shiftX
	top := centerY - newHeight/2 + shiftY
	right := centerX + newWidth/2 + shiftX
	bottom := centerY + newHeight/2 + shiftY

	if left < 0 {
		right -= left
		left = 0
	}
	if top < 0 {
		bottom -= top
		top = 0
	}
	if right >= w {
		s := right - w + 1
		left -= s
	}
	if bottom >= h {
		s := bottom - h + 1
		top -= s
	}

	rect := image.Rect(left, top, left+newWidth, top+newHeight).Intersect(image.Rect(0, 0, w, h))
	if rect.Empty() {
		return box.Intersect(image.Rect(0, 0, w, h))
	}
	return rect
}

// fill builds an NCHW BGR tensor from a per-pixel sampler
func fill(width, height int, at func(x, y int) (float32, float32, float32)) []float32 {
	plane := width * height
	out := make([]float32, 3*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			b, g, r := at(x, y)
			i := y*width + x
			out[i] = b
			out[plane+i] = g
			out[2*plane+i] = r
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
