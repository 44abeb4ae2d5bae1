package frame

import (
	"fmt"
	"image"
)

// Orientation tells how a captured buffer must be turned to be viewed
// upright. Codes 0-3 are clockwise quarter turns; 4-7 are the same turn
// followed by a horizontal mirror of the upright picture. The numbering is
// part of the C boundary and must not change.
type Orientation int

const (
	Up              Orientation = 0
	Right90         Orientation = 1
	Down180         Orientation = 2
	Left270         Orientation = 3
	UpMirrored      Orientation = 4
	Right90Mirrored Orientation = 5
	Down180Mirrored Orientation = 6
	Left270Mirrored Orientation = 7
)

// Valid reports whether o is one of the eight defined codes
func (o Orientation) Valid() bool {
	return o >= Up && o <= Left270Mirrored
}

func (o Orientation) String() string {
	names := [...]string{"up", "right90", "down180", "left270",
		"up-mirrored", "right90-mirrored", "down180-mirrored", "left270-mirrored"}
	if !o.Valid() {
		return fmt.Sprintf("orientation(%d)", int(o))
	}
	return names[o]
}

// QuarterTurns returns the number of clockwise 90 degree turns
func (o Orientation) QuarterTurns() int {
	return int(o) % 4
}

// Mirrored reports whether the upright picture is flipped horizontally
func (o Orientation) Mirrored() bool {
	return o >= UpMirrored
}

// Transposed reports whether rows of the upright picture run along
// columns of the buffer.
func (o Orientation) Transposed() bool {
	return o.QuarterTurns()%2 == 1
}

// UprightSize returns the dimensions of the upright picture for a
// width x height buffer.
func (o Orientation) UprightSize(width, height int) (int, int) {
	if o.Transposed() {
		return height, width
	}
	return width, height
}

// PixelToBuffer maps the upright pixel (u, v) to its buffer pixel
func (o Orientation) PixelToBuffer(u, v, width, height int) (int, int) {
	if o.Mirrored() {
		uw, _ := o.UprightSize(width, height)
		u = uw - 1 - u
	}
	switch o.QuarterTurns() {
	case 1:
		return v, height - 1 - u
	case 2:
		return width - 1 - u, height - 1 - v
	case 3:
		return width - 1 - v, u
	}
	return u, v
}

// PointToBuffer maps a continuous upright position to buffer space
func (o Orientation) PointToBuffer(u, v float64, width, height int) (float64, float64) {
	w, h := float64(width), float64(height)
	if o.Mirrored() {
		uw, _ := o.UprightSize(width, height)
		u = float64(uw) - u
	}
	switch o.QuarterTurns() {
	case 1:
		return v, h - u
	case 2:
		return w - u, h - v
	case 3:
		return w - v, u
	}
	return u, v
}

// PointFromBuffer maps a continuous buffer position to upright space
func (o Orientation) PointFromBuffer(x, y float64, width, height int) (float64, float64) {
	w, h := float64(width), float64(height)
	var u, v float64
	switch o.QuarterTurns() {
	case 1:
		u, v = h-y, x
	case 2:
		u, v = w-x, h-y
	case 3:
		u, v = y, w-x
	default:
		u, v = x, y
	}
	if o.Mirrored() {
		uw, _ := o.UprightSize(width, height)
		u = float64(uw) - u
	}
	return u, v
}

// RectToBuffer maps a box given in upright coordinates into the raw
// width x height buffer.
func (o Orientation) RectToBuffer(r image.Rectangle, width, height int) image.Rectangle {
	x0, y0 := o.PointToBuffer(float64(r.Min.X), float64(r.Min.Y), width, height)
	x1, y1 := o.PointToBuffer(float64(r.Max.X), float64(r.Max.Y), width, height)
	return image.Rect(int(x0), int(y0), int(x1), int(y1))
}

// RectFromBuffer maps a box in raw buffer coordinates to upright space
func (o Orientation) RectFromBuffer(r image.Rectangle, width, height int) image.Rectangle {
	u0, v0 := o.PointFromBuffer(float64(r.Min.X), float64(r.Min.Y), width, height)
	u1, v1 := o.PointFromBuffer(float64(r.Max.X), float64(r.Max.Y), width, height)
	return image.Rect(int(u0), int(v0), int(u1), int(v1))
}
