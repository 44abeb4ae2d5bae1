package detector

import (
	"math"
	"sort"
)

// nms performs Non-Maximum Suppression on detected faces. The sort is
// stable so equal scores keep decode (raster) order.
func nms(faces []Face, iouThreshold float32) []Face {
	if len(faces) == 0 {
		return faces
	}

	// Sort by score (descending)
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	keep := make([]bool, len(faces))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(faces); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if !keep[j] {
				continue
			}
			if iou(faces[i].BoundingBox, faces[j].BoundingBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Face, 0, len(faces))
	for i, face := range faces {
		if keep[i] {
			result = append(result, face)
		}
	}

	return result
}

// iou calculates Intersection over Union of two bounding boxes
func iou(a, b BoundingBox) float32 {
	x1 := max32(a.X1, b.X1)
	y1 := max32(a.Y1, b.Y1)
	x2 := min32(a.X2, b.X2)
	y2 := min32(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// toBoxes rounds faces into the frame and orders them by confidence
// descending, then top, left, bottom, right. Boxes that vanish after
// clamping are dropped.
func toBoxes(faces []Face, width, height int) []FaceBox {
	boxes := make([]FaceBox, 0, len(faces))
	for _, f := range faces {
		b := FaceBox{
			Left:       int32(math.Round(float64(clamp(f.BoundingBox.X1, 0, float32(width))))),
			Top:        int32(math.Round(float64(clamp(f.BoundingBox.Y1, 0, float32(height))))),
			Right:      int32(math.Round(float64(clamp(f.BoundingBox.X2, 0, float32(width))))),
			Bottom:     int32(math.Round(float64(clamp(f.BoundingBox.Y2, 0, float32(height))))),
			Confidence: clamp(f.Score, 0, 1),
		}
		if b.Right <= b.Left || b.Bottom <= b.Top {
			continue
		}
		boxes = append(boxes, b)
	}

	sort.Slice(boxes, func(i, j int) bool {
		a, b := boxes[i], boxes[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		if a.Bottom != b.Bottom {
			return a.Bottom < b.Bottom
		}
		return a.Right < b.Right
	})

	return boxes
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
