package pipeline

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference"
	"github.com/dudu/facelive/internal/liveness"
	"github.com/dudu/facelive/internal/log"
)

// Config holds pipeline configuration
type Config struct {
	Loader      inference.Loader
	Detector    detector.Config
	Liveness    []liveness.ModelConfig // empty disables scoring
	Aggregation liveness.Aggregation
	Layout      frame.Layout
	Threshold   float32 // minimum score counted as live
}

// Timing holds performance timing information
type Timing struct {
	Adapt     time.Duration
	Detection time.Duration
	Liveness  time.Duration
	Total     time.Duration
}

// Result is one detected face with its liveness verdict
type Result struct {
	Box   detector.FaceBox
	Score float32 // liveness.InvalidScore when not scored
	Live  bool
	Err   error
}

// Pipeline detects faces and scores each one
type Pipeline struct {
	detector   FaceDetector
	scorer     LivenessScorer
	layout     frame.Layout
	threshold  float32
	lastTiming Timing
}

// New composes already loaded engines. scorer may be nil.
func New(det FaceDetector, scorer LivenessScorer, layout frame.Layout, threshold float32) *Pipeline {
	return &Pipeline{
		detector:  det,
		scorer:    scorer,
		layout:    layout,
		threshold: threshold,
	}
}

// Build allocates and loads both engines from config
func Build(config Config) (*Pipeline, error) {
	det := detector.New(detector.WithConfig(config.Detector), detector.WithLoader(config.Loader))
	if err := det.LoadModel(); err != nil {
		det.Close()
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	var scorer LivenessScorer
	if len(config.Liveness) > 0 {
		live := liveness.New(
			liveness.WithLoader(config.Loader),
			liveness.WithLayout(config.Layout),
			liveness.WithAggregation(config.Aggregation),
		)
		if err := live.LoadModel(config.Liveness); err != nil {
			det.Close()
			live.Close()
			return nil, fmt.Errorf("failed to create liveness engine: %w", err)
		}
		scorer = live
	}

	return New(det, scorer, config.Layout, config.Threshold), nil
}

// ProcessYUV adapts a raw buffer and processes it
func (p *Pipeline) ProcessYUV(yuv []byte, width, height int, o frame.Orientation) ([]Result, error) {
	start := time.Now()
	src, err := frame.NewYUV(yuv, width, height, p.layout, o)
	if err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	adapt := time.Since(start)

	results, err := p.Process(src)
	p.lastTiming.Adapt = adapt
	p.lastTiming.Total += adapt
	return results, err
}

// Process detects faces in src and scores each one. A face whose score
// fails keeps its box with InvalidScore and the error.
func (p *Pipeline) Process(src frame.Source) ([]Result, error) {
	totalStart := time.Now()
	var timing Timing

	detectStart := time.Now()
	boxes, err := p.detector.Detect(src)
	timing.Detection = time.Since(detectStart)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	results := make([]Result, len(boxes))
	for i, box := range boxes {
		results[i] = Result{Box: box, Score: liveness.InvalidScore}
		if p.scorer == nil {
			continue
		}

		scoreStart := time.Now()
		score, err := p.scorer.ScoreFrame(src, box.Rect())
		timing.Liveness += time.Since(scoreStart)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Score = score
		results[i].Live = score >= p.threshold
	}

	timing.Total = time.Since(totalStart)
	p.lastTiming = timing

	log.Debug(logrus.Fields{
		"faces":     len(results),
		"detection": timing.Detection.String(),
		"liveness":  timing.Liveness.String(),
	}, "frame processed")
	return results, nil
}

// LastTiming returns timing from last Process call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var errs []error

	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, err)
		}
		p.detector = nil
	}
	if p.scorer != nil {
		if err := p.scorer.Close(); err != nil {
			errs = append(errs, err)
		}
		p.scorer = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
