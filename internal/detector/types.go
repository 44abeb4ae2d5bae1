package detector

import (
	"image"
)

// BoundingBox is a face box in continuous upright frame coordinates
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Face is a decoded detection before NMS and rounding
type Face struct {
	BoundingBox BoundingBox
	Score       float32
}

// FaceBox is one detected face. Right and Bottom are exclusive, so the box
// covers [Left, Right) x [Top, Bottom) of the upright frame. The layout
// matches the C boundary struct.
type FaceBox struct {
	Left       int32
	Top        int32
	Right      int32
	Bottom     int32
	Confidence float32
}

// Rect returns the box as an image.Rectangle
func (f FaceBox) Rect() image.Rectangle {
	return image.Rect(int(f.Left), int(f.Top), int(f.Right), int(f.Bottom))
}

// Format selects the output decoding of the detection model
type Format string

const (
	// SCRFD: score/bbox(/kps) per stride 8, 16, 32 with 2 anchors
	FormatSCRFD Format = "scrfd"
	// SSD DetectionOutput rows [label, score, x1, y1, x2, y2], normalised
	FormatDetectionOut Format = "detection_out"
)
