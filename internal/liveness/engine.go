package liveness

import (
	"fmt"
	"image"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference"
	"github.com/dudu/facelive/internal/lifecycle"
	"github.com/dudu/facelive/internal/log"
)

// InvalidScore is returned with every Score error
const InvalidScore float32 = -1

// realClass is the output index of the "real face" class
const realClass = 1

type subModel struct {
	cfg  ModelConfig
	prep Preprocessor
	net  inference.Network
}

// Engine scores how likely a detected face belongs to a live person.
// It is not safe for concurrent use.
type Engine struct {
	id          string
	loader      inference.Loader
	guard       lifecycle.Guard
	layout      frame.Layout
	aggregation Aggregation
	softmax     bool
	models      []subModel
	logger      *logrus.Entry
}

// Option customises an Engine at allocation
type Option func(*Engine)

// WithLoader sets the model backend
func WithLoader(l inference.Loader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLayout sets the chroma layout of Score buffers
func WithLayout(l frame.Layout) Option {
	return func(e *Engine) {
		e.layout = l
	}
}

// WithAggregation sets how sub-model results combine. Empty keeps the
// product default.
func WithAggregation(a Aggregation) Option {
	return func(e *Engine) {
		if a != "" {
			e.aggregation = a
		}
	}
}

// WithSoftmax controls whether raw outputs go through softmax. Disable it
// for models that already emit probabilities.
func WithSoftmax(enabled bool) Option {
	return func(e *Engine) {
		e.softmax = enabled
	}
}

// New allocates an unloaded engine. It never fails.
func New(opts ...Option) *Engine {
	e := &Engine{
		id:          uuid.NewString(),
		layout:      frame.NV21,
		aggregation: AggregateProduct,
		softmax:     true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = &inference.ORTLoader{ModelDir: "models"}
	}
	e.logger = log.WithEngine("liveness", e.id)
	return e
}

// ID identifies the handle in logs
func (e *Engine) ID() string {
	return e.id
}

// State returns the lifecycle state
func (e *Engine) State() lifecycle.State {
	return e.guard.State()
}

// Models returns a copy of the loaded sub-model configs
func (e *Engine) Models() []ModelConfig {
	out := make([]ModelConfig, len(e.models))
	for i, m := range e.models {
		out[i] = m.cfg
	}
	return out
}

// LoadModel validates every config, then loads the sub-models in order.
// If any load fails the ones already loaded are released and the engine
// stays unloaded.
func (e *Engine) LoadModel(configs []ModelConfig) error {
	const op = "liveness.LoadModel"

	if err := e.guard.CanLoad(op); err != nil {
		e.warn(err)
		return err
	}
	if len(configs) == 0 {
		err := errors.NewUsageError(op, "no model configs")
		e.warn(err)
		return err
	}
	switch e.aggregation {
	case AggregateProduct, AggregateMean:
	default:
		err := errors.NewUsageErrorf(op, "unknown aggregation %q", e.aggregation)
		e.warn(err)
		return err
	}
	for i, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			uerr := errors.NewUsageErrorf(op, "config %d: %v", i, err)
			e.warn(uerr)
			return uerr
		}
	}

	models := make([]subModel, 0, len(configs))
	for _, cfg := range configs {
		net, err := e.loader.Load(inference.Asset{Name: cfg.Name})
		if err != nil {
			for _, m := range models {
				if cerr := m.net.Close(); cerr != nil {
					e.logger.WithField("model", m.cfg.Name).Warn("failed to release sub-model during rollback")
				}
			}
			if errors.CodeOf(err) != errors.ErrorAsset {
				err = errors.NewAssetError(op, cfg.Name, err)
			}
			e.logger.WithFields(logrus.Fields{
				"error":      err.Error(),
				"model":      cfg.Name,
				"rolledBack": len(models),
			}).Error("failed to load liveness model")
			return err
		}
		models = append(models, subModel{cfg: cfg, prep: NewPreprocessor(cfg), net: net})
	}

	e.models = models
	e.guard.MarkLoaded()

	e.logger.WithFields(logrus.Fields{
		"models":      len(models),
		"aggregation": e.aggregation,
	}).Info("liveness models loaded")
	return nil
}

// Score rates one face in a raw 4:2:0 buffer. box is in the upright frame
// described by o, as returned by the detector. A box reaching past the
// frame edges is clipped to the frame and the remainder scored; only an
// empty or inverted box, or one wholly outside the frame, is rejected.
// Any failure returns InvalidScore with the error.
func (e *Engine) Score(yuv []byte, width, height int, o frame.Orientation, box image.Rectangle) (float32, error) {
	const op = "liveness.Score"

	if err := e.guard.Ready(op); err != nil {
		e.warn(err)
		return InvalidScore, err
	}
	src, err := frame.NewYUV(yuv, width, height, e.layout, o)
	if err != nil {
		uerr := errors.NewUsageError(op, err.Error())
		e.warn(uerr)
		return InvalidScore, uerr
	}
	return e.score(op, src, box)
}

// ScoreFrame rates one face in an already adapted frame
func (e *Engine) ScoreFrame(src frame.Source, box image.Rectangle) (float32, error) {
	const op = "liveness.ScoreFrame"

	if err := e.guard.Ready(op); err != nil {
		e.warn(err)
		return InvalidScore, err
	}
	return e.score(op, src, box)
}

func (e *Engine) score(op string, src frame.Source, box image.Rectangle) (float32, error) {
	if box.Empty() {
		err := errors.NewUsageErrorf(op, "empty face box %v", box)
		e.warn(err)
		return InvalidScore, err
	}
	clipped := box.Intersect(frame.Bounds(src))
	if clipped.Empty() {
		err := errors.NewUsageErrorf(op, "face box %v outside frame %v", box, frame.Bounds(src))
		e.warn(err)
		return InvalidScore, err
	}

	result := 1.0
	if e.aggregation == AggregateMean {
		result = 0
	}

	for _, m := range e.models {
		input := m.prep.Prepare(src, clipped)
		shape := []int64{1, 3, int64(m.cfg.Height), int64(m.cfg.Width)}

		outputs, err := m.net.Run(input, shape)
		if err != nil {
			return InvalidScore, errors.NewInferenceError(op, m.cfg.Name, err)
		}
		p, err := realProbability(outputs, e.softmax)
		if err != nil {
			return InvalidScore, errors.NewInferenceError(op, m.cfg.Name, err)
		}

		if e.aggregation == AggregateMean {
			result += p
		} else {
			result *= p
		}
	}
	if e.aggregation == AggregateMean {
		result /= float64(len(e.models))
	}

	if math.IsNaN(result) {
		return InvalidScore, errors.NewInferenceError(op, "", fmt.Errorf("score is NaN"))
	}
	score := float32(math.Min(math.Max(result, 0), 1))

	e.logger.WithFields(logrus.Fields{
		"score": score,
		"box":   clipped.String(),
	}).Debug("liveness scored")
	return score, nil
}

// realProbability reads the real-face class from the first output
func realProbability(outputs [][]float32, softmax bool) (float64, error) {
	if len(outputs) == 0 {
		return 0, fmt.Errorf("model produced no outputs")
	}
	logits := outputs[0]
	if len(logits) <= realClass {
		return 0, fmt.Errorf("expected at least %d classes, got %d", realClass+1, len(logits))
	}
	if !softmax {
		return float64(logits[realClass]), nil
	}

	peak := math.Inf(-1)
	for _, v := range logits {
		peak = math.Max(peak, float64(v))
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - peak)
	}
	return math.Exp(float64(logits[realClass])-peak) / sum, nil
}

// Close releases every sub-model. A second Close is a usage error.
func (e *Engine) Close() error {
	const op = "liveness.Close"

	if err := e.guard.Detach(op); err != nil {
		e.warn(err)
		return err
	}

	var firstErr error
	for _, m := range e.models {
		if err := m.net.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to release liveness model %s: %w", m.cfg.Name, err)
		}
	}
	e.models = nil

	e.logger.Info("liveness engine released")
	return firstErr
}

func (e *Engine) warn(err error) {
	fields := logrus.Fields{"error": err.Error()}
	if ee, ok := err.(*errors.EngineError); ok {
		fields = ee.ToMap()
	}
	e.logger.WithFields(fields).Warn("rejected call")
}
