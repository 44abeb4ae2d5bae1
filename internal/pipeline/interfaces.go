package pipeline

import (
	"image"

	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/frame"
)

// FaceDetector interface for face detection
type FaceDetector interface {
	Detect(src frame.Source) ([]detector.FaceBox, error)
	Close() error
}

// LivenessScorer interface for scoring one face box
type LivenessScorer interface {
	ScoreFrame(src frame.Source, box image.Rectangle) (float32, error)
	Close() error
}
