package detector

import (
	"fmt"
)

// scrfdDecoder decodes SCRFD outputs: per feature stride a score map and
// distance-to-edge boxes, with numAnchors anchors per position.
type scrfdDecoder struct {
	inputSize      int
	confThreshold  float32
	featureStrides []int
	numAnchors     int
}

func newSCRFDDecoder(inputSize int, confThreshold float32) *scrfdDecoder {
	return &scrfdDecoder{
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
	}
}

// outputNames lists the SCRFD outputs in decode order: 3 levels of
// score, bbox and keypoints. Keypoints are not used.
func (s *scrfdDecoder) outputNames() ([]string, []string) {
	return []string{"input.1"}, []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}
}

// decode converts model outputs to faces in frame coordinates
func (s *scrfdDecoder) decode(outputs [][]float32, scale float32, origWidth, origHeight int) ([]Face, error) {
	levels := len(s.featureStrides)
	if len(outputs) < 2*levels {
		return nil, fmt.Errorf("scrfd: expected at least %d outputs, got %d", 2*levels, len(outputs))
	}

	var faces []Face

	for level := 0; level < levels; level++ {
		stride := s.featureStrides[level]
		fmHeight := s.inputSize / stride
		fmWidth := s.inputSize / stride
		numAnchors := fmHeight * fmWidth * s.numAnchors

		scoreData := outputs[level]
		bboxData := outputs[level+levels]
		if len(scoreData) < numAnchors || len(bboxData) < numAnchors*4 {
			return nil, fmt.Errorf("scrfd: stride %d outputs too short: score %d, bbox %d, want %d anchors",
				stride, len(scoreData), len(bboxData), numAnchors)
		}

		anchorIdx := 0
		for y := 0; y < fmHeight; y++ {
			for x := 0; x < fmWidth; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := scoreData[anchorIdx]

					if score > s.confThreshold {
						// Anchor center
						cx := float32(x) * float32(stride)
						cy := float32(y) * float32(stride)

						// Decode bbox (distance to edges)
						bboxIdx := anchorIdx * 4
						x1 := (cx - bboxData[bboxIdx]*float32(stride)) / scale
						y1 := (cy - bboxData[bboxIdx+1]*float32(stride)) / scale
						x2 := (cx + bboxData[bboxIdx+2]*float32(stride)) / scale
						y2 := (cy + bboxData[bboxIdx+3]*float32(stride)) / scale

						// Clamp to image bounds
						x1 = clamp(x1, 0, float32(origWidth))
						y1 = clamp(y1, 0, float32(origHeight))
						x2 = clamp(x2, 0, float32(origWidth))
						y2 = clamp(y2, 0, float32(origHeight))

						faces = append(faces, Face{
							BoundingBox: BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
							Score:       score,
						})
					}
					anchorIdx++
				}
			}
		}
	}

	return faces, nil
}
