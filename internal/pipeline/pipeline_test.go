package pipeline

import (
	stderrors "errors"
	"fmt"
	"image"
	"testing"

	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference/inferencetest"
	"github.com/dudu/facelive/internal/liveness"
)

type fakeDetector struct {
	boxes  []detector.FaceBox
	err    error
	closed bool
}

func (f *fakeDetector) Detect(frame.Source) ([]detector.FaceBox, error) {
	return f.boxes, f.err
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

// fakeScorer scores a box by its left edge
type fakeScorer struct {
	scores map[int]float32
	seen   []image.Rectangle
	closed bool
}

func (f *fakeScorer) ScoreFrame(_ frame.Source, box image.Rectangle) (float32, error) {
	f.seen = append(f.seen, box)
	s, ok := f.scores[box.Min.X]
	if !ok {
		return liveness.InvalidScore, fmt.Errorf("no score for %v", box)
	}
	return s, nil
}

func (f *fakeScorer) Close() error {
	f.closed = true
	return nil
}

func grayFrame(width, height int) []byte {
	buf := make([]byte, frame.BufferSize(width, height))
	for i := range buf {
		buf[i] = 128
	}
	return buf
}

func TestProcessScoresEachFace(t *testing.T) {
	det := &fakeDetector{boxes: []detector.FaceBox{
		{Left: 1, Top: 1, Right: 11, Bottom: 11, Confidence: 0.9},
		{Left: 20, Top: 1, Right: 30, Bottom: 11, Confidence: 0.8},
		{Left: 40, Top: 1, Right: 50, Bottom: 11, Confidence: 0.7},
	}}
	scorer := &fakeScorer{scores: map[int]float32{1: 0.95, 20: 0.2}}
	p := New(det, scorer, frame.I420, 0.5)

	results, err := p.ProcessYUV(grayFrame(64, 48), 64, 48, frame.Up)
	if err != nil {
		t.Fatalf("ProcessYUV failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	if !results[0].Live || results[0].Score != 0.95 {
		t.Errorf("Expected first face live at 0.95, got %+v", results[0])
	}
	if results[1].Live || results[1].Score != 0.2 {
		t.Errorf("Expected second face spoof at 0.2, got %+v", results[1])
	}
	if results[2].Err == nil || results[2].Score != liveness.InvalidScore {
		t.Errorf("Expected third face to carry its error, got %+v", results[2])
	}
	if len(scorer.seen) != 3 || scorer.seen[1] != image.Rect(20, 1, 30, 11) {
		t.Errorf("Unexpected scored boxes: %v", scorer.seen)
	}

	timing := p.LastTiming()
	if timing.Total < timing.Detection {
		t.Errorf("Expected total %v to cover detection %v", timing.Total, timing.Detection)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !det.closed || !scorer.closed {
		t.Error("Expected both engines closed")
	}
}

func TestProcessWithoutScorer(t *testing.T) {
	det := &fakeDetector{boxes: []detector.FaceBox{{Left: 1, Top: 1, Right: 11, Bottom: 11, Confidence: 0.9}}}
	p := New(det, nil, frame.I420, 0.5)

	results, err := p.ProcessYUV(grayFrame(32, 32), 32, 32, frame.Up)
	if err != nil {
		t.Fatalf("ProcessYUV failed: %v", err)
	}
	if len(results) != 1 || results[0].Score != liveness.InvalidScore || results[0].Live {
		t.Errorf("Expected one unscored result, got %+v", results)
	}
}

func TestProcessErrors(t *testing.T) {
	det := &fakeDetector{err: errors.NewUsageError("detector.Detect", "model not loaded")}
	p := New(det, nil, frame.I420, 0.5)

	if _, err := p.ProcessYUV(grayFrame(32, 32), 32, 32, frame.Up); !stderrors.Is(err, errors.ErrUsage) {
		t.Errorf("Expected wrapped usage error, got %v", err)
	}
	if _, err := p.ProcessYUV(make([]byte, 10), 32, 32, frame.Up); err == nil {
		t.Error("Expected error for short buffer")
	}
}

func TestBuild(t *testing.T) {
	rows := []float32{1, 0.9, 0.25, 0.25, 0.75, 0.75}
	loader := inferencetest.NewLoader().
		Register("detection", inferencetest.Constant(rows)).
		Register("live", inferencetest.Constant([]float32{0, 0}))

	cfg := detector.DetectionOutConfig()
	cfg.InputSize = 32
	p, err := Build(Config{
		Loader:      loader,
		Detector:    cfg,
		Liveness:    []liveness.ModelConfig{{Scale: 2.7, Width: 8, Height: 8, Name: "live"}},
		Aggregation: liveness.AggregateProduct,
		Layout:      frame.I420,
		Threshold:   0.4,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer p.Close()

	results, err := p.ProcessYUV(grayFrame(32, 32), 32, 32, frame.Up)
	if err != nil {
		t.Fatalf("ProcessYUV failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(results))
	}
	want := detector.FaceBox{Left: 8, Top: 8, Right: 24, Bottom: 24, Confidence: 0.9}
	if results[0].Box != want {
		t.Errorf("Expected %+v, got %+v", want, results[0].Box)
	}
	if results[0].Score != 0.5 || !results[0].Live {
		t.Errorf("Expected live score 0.5, got %+v", results[0])
	}
}

func TestBuildReleasesDetectorOnLivenessFailure(t *testing.T) {
	loader := inferencetest.NewLoader().
		Register("detection", inferencetest.Constant([]float32{}))

	cfg := detector.DetectionOutConfig()
	cfg.InputSize = 32
	_, err := Build(Config{
		Loader:   loader,
		Detector: cfg,
		Liveness: []liveness.ModelConfig{{Scale: 2.7, Width: 8, Height: 8, Name: "missing"}},
		Layout:   frame.I420,
	})
	if !stderrors.Is(err, errors.ErrAsset) {
		t.Fatalf("Expected asset error, got %v", err)
	}
	for _, n := range loader.Opened() {
		if !n.Closed() {
			t.Errorf("Expected %s released", n.Name)
		}
	}
}
