package frame

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Source is a read-only upright picture. Coordinates passed to BGR must lie
// inside [0, w) x [0, h) as returned by Size.
type Source interface {
	Size() (w, h int)
	BGR(x, y int) (b, g, r uint8)
}

// packed is an upright BGR copy of a frame
type packed struct {
	pix  []byte
	w, h int
}

// Materialize copies src into an owned packed BGR picture
func Materialize(src Source) Source {
	w, h := src.Size()
	p := &packed{pix: make([]byte, w*h*3), w: w, h: h}
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			b, g, r := src.BGR(x, y)
			p.pix[i] = b
			p.pix[i+1] = g
			p.pix[i+2] = r
			i += 3
		}
	}
	return p
}

func (p *packed) Size() (int, int) {
	return p.w, p.h
}

func (p *packed) BGR(x, y int) (uint8, uint8, uint8) {
	i := (y*p.w + x) * 3
	return p.pix[i], p.pix[i+1], p.pix[i+2]
}

// imageSource adapts a decoded image.Image
type imageSource struct {
	img    image.Image
	origin image.Point
	w, h   int
}

// FromImage wraps a decoded image. The image is already upright.
func FromImage(img image.Image) (Source, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty image bounds %v", b)
	}
	return &imageSource{img: img, origin: b.Min, w: b.Dx(), h: b.Dy()}, nil
}

// FromRGBA wraps a borrowed RGBA8 buffer with the given row stride
func FromRGBA(buf []byte, width, height, stride int) (Source, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if stride < width*4 {
		return nil, fmt.Errorf("stride %d shorter than row of %d pixels", stride, width)
	}
	if need := stride*(height-1) + width*4; len(buf) < need {
		return nil, fmt.Errorf("rgba buffer too small: have %d bytes, need %d", len(buf), need)
	}
	return FromImage(&image.RGBA{Pix: buf, Stride: stride, Rect: image.Rect(0, 0, width, height)})
}

func (s *imageSource) Size() (int, int) {
	return s.w, s.h
}

func (s *imageSource) BGR(x, y int) (uint8, uint8, uint8) {
	px, py := s.origin.X+x, s.origin.Y+y
	switch img := s.img.(type) {
	case *image.RGBA:
		i := img.PixOffset(px, py)
		return img.Pix[i+2], img.Pix[i+1], img.Pix[i]
	case *image.NRGBA:
		i := img.PixOffset(px, py)
		return img.Pix[i+2], img.Pix[i+1], img.Pix[i]
	case *image.YCbCr:
		yi := img.YOffset(px, py)
		ci := img.COffset(px, py)
		r, g, b := color.YCbCrToRGB(img.Y[yi], img.Cb[ci], img.Cr[ci])
		return b, g, r
	}
	c := color.RGBAModel.Convert(s.img.At(px, py)).(color.RGBA)
	return c.B, c.G, c.R
}

// Sample reads a bilinear-interpolated BGR value at the continuous
// position (fx, fy), where pixel centres sit at half-integers. Neighbour
// reads are clamped to clip, which must be a non-empty subset of the
// source bounds.
func Sample(src Source, fx, fy float64, clip image.Rectangle) (float32, float32, float32) {
	x := fx - 0.5
	y := fy - 0.5

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	ax := float32(x - float64(x0))
	ay := float32(y - float64(y0))

	x1 := clampInt(x0+1, clip.Min.X, clip.Max.X-1)
	y1 := clampInt(y0+1, clip.Min.Y, clip.Max.Y-1)
	x0 = clampInt(x0, clip.Min.X, clip.Max.X-1)
	y0 = clampInt(y0, clip.Min.Y, clip.Max.Y-1)

	b00, g00, r00 := src.BGR(x0, y0)
	b10, g10, r10 := src.BGR(x1, y0)
	b01, g01, r01 := src.BGR(x0, y1)
	b11, g11, r11 := src.BGR(x1, y1)

	lerp := func(v00, v10, v01, v11 uint8) float32 {
		top := float32(v00)*(1-ax) + float32(v10)*ax
		bottom := float32(v01)*(1-ax) + float32(v11)*ax
		return top*(1-ay) + bottom*ay
	}

	return lerp(b00, b10, b01, b11), lerp(g00, g10, g01, g11), lerp(r00, r10, r01, r11)
}

// Bounds returns the full rectangle of src
func Bounds(src Source) image.Rectangle {
	w, h := src.Size()
	return image.Rect(0, 0, w, h)
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
