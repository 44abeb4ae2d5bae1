package detector

import (
	"fmt"
)

// detectionOutDecoder reads SSD DetectionOutput rows
// [label, score, x1, y1, x2, y2] with corners normalised to the model input.
type detectionOutDecoder struct {
	inputSize     int
	confThreshold float32
}

func (d *detectionOutDecoder) outputNames() ([]string, []string) {
	return nil, nil
}

func (d *detectionOutDecoder) decode(outputs [][]float32, scale float32, origWidth, origHeight int) ([]Face, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("detection_out: no outputs")
	}
	rows := outputs[0]
	if len(rows)%6 != 0 {
		return nil, fmt.Errorf("detection_out: output length %d is not a multiple of 6", len(rows))
	}

	size := float32(d.inputSize)
	var faces []Face
	for i := 0; i+6 <= len(rows); i += 6 {
		score := rows[i+1]
		if !(score > d.confThreshold) {
			continue
		}
		x1 := clamp(rows[i+2]*size/scale, 0, float32(origWidth))
		y1 := clamp(rows[i+3]*size/scale, 0, float32(origHeight))
		x2 := clamp(rows[i+4]*size/scale, 0, float32(origWidth))
		y2 := clamp(rows[i+5]*size/scale, 0, float32(origHeight))

		faces = append(faces, Face{
			BoundingBox: BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
			Score:       score,
		})
	}
	return faces, nil
}
