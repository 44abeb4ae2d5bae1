package frame

import (
	"fmt"
	"image/color"
	"strings"
)

// Layout is the plane arrangement of a 4:2:0 buffer
type Layout int

const (
	// Y plane, then U plane, then V plane
	I420 Layout = iota
	// Y plane, then interleaved U,V
	NV12
	// Y plane, then interleaved V,U (Android camera default)
	NV21
)

func (l Layout) String() string {
	switch l {
	case I420:
		return "i420"
	case NV12:
		return "nv12"
	case NV21:
		return "nv21"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

// ParseLayout accepts i420, nv12 or nv21 (case-insensitive)
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "i420", "yuv420p":
		return I420, nil
	case "nv12":
		return NV12, nil
	case "nv21", "yuv420sp":
		return NV21, nil
	}
	return 0, fmt.Errorf("unknown yuv layout %q", s)
}

// BufferSize returns the minimum number of bytes of a width x height frame
func BufferSize(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}

// yuvView reads a borrowed buffer through the orientation transform
type yuvView struct {
	buf    []byte
	width  int
	height int
	cw     int
	layout Layout
	orient Orientation
	w, h   int
	uOff   int
	vOff   int
}

// NewYUV wraps a raw 4:2:0 buffer. Rotations that keep buffer rows as
// picture rows are served in place; transposed rotations are copied into
// an upright packed picture once, so per-pixel reads stay row-contiguous.
// An in-place Source borrows buf and must not outlive it.
func NewYUV(buf []byte, width, height int, layout Layout, o Orientation) (Source, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if !o.Valid() {
		return nil, fmt.Errorf("invalid orientation code %d", int(o))
	}
	if need := BufferSize(width, height); len(buf) < need {
		return nil, fmt.Errorf("yuv buffer too small: have %d bytes, need %d for %dx%d", len(buf), need, width, height)
	}

	cw, ch := (width+1)/2, (height+1)/2
	v := &yuvView{
		buf:    buf,
		width:  width,
		height: height,
		cw:     cw,
		layout: layout,
		orient: o,
	}
	v.w, v.h = o.UprightSize(width, height)

	ySize := width * height
	switch layout {
	case I420:
		v.uOff = ySize
		v.vOff = ySize + cw*ch
	case NV12:
		v.uOff = ySize
		v.vOff = ySize + 1
	case NV21:
		v.vOff = ySize
		v.uOff = ySize + 1
	default:
		return nil, fmt.Errorf("unsupported yuv layout %v", layout)
	}

	if o.Transposed() {
		return Materialize(v), nil
	}
	return v, nil
}

func (v *yuvView) Size() (int, int) {
	return v.w, v.h
}

func (v *yuvView) BGR(u, w int) (uint8, uint8, uint8) {
	x, y := u, w
	if v.orient != Up {
		x, y = v.orient.PixelToBuffer(u, w, v.width, v.height)
	}
	return v.bufferBGR(x, y)
}

// bufferBGR reads the pixel at buffer coordinates
func (v *yuvView) bufferBGR(x, y int) (uint8, uint8, uint8) {
	luma := v.buf[y*v.width+x]

	cx, cy := x/2, y/2
	var cb, cr uint8
	if v.layout == I420 {
		idx := cy*v.cw + cx
		cb = v.buf[v.uOff+idx]
		cr = v.buf[v.vOff+idx]
	} else {
		idx := (cy*v.cw + cx) * 2
		cb = v.buf[v.uOff+idx]
		cr = v.buf[v.vOff+idx]
	}

	r, g, b := color.YCbCrToRGB(luma, cb, cr)
	return b, g, r
}
