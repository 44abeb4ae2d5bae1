package detector

import (
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference"
	"github.com/dudu/facelive/internal/lifecycle"
	"github.com/dudu/facelive/internal/log"
)

// Config holds detector configuration
type Config struct {
	Asset         string // model asset name, "detection" by default
	Format        Format
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
	Mean          [3]float32 // per input channel, subtracted first
	Scale         [3]float32 // per input channel, multiplied after Mean
	BGR           bool       // feed channels as B,G,R instead of R,G,B
	Layout        frame.Layout
}

// DefaultConfig returns the settings for the built-in SCRFD model
func DefaultConfig() Config {
	return Config{
		Asset:         "detection",
		Format:        FormatSCRFD,
		InputSize:     640,
		ConfThreshold: 0.5,
		NMSThreshold:  0.4,
		Mean:          [3]float32{127.5, 127.5, 127.5},
		Scale:         [3]float32{1 / 128.0, 1 / 128.0, 1 / 128.0},
		Layout:        frame.NV21,
	}
}

// DetectionOutConfig returns settings for an SSD-style detection model
// fed BGR pixels with ImageNet channel means.
func DetectionOutConfig() Config {
	return Config{
		Asset:         "detection",
		Format:        FormatDetectionOut,
		InputSize:     320,
		ConfThreshold: 0.6,
		NMSThreshold:  0.4,
		Mean:          [3]float32{104, 117, 123},
		Scale:         [3]float32{1, 1, 1},
		BGR:           true,
		Layout:        frame.NV21,
	}
}

func (c Config) validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	switch c.Format {
	case FormatSCRFD:
		if c.InputSize%32 != 0 {
			return fmt.Errorf("scrfd input size must be a multiple of 32, got %d", c.InputSize)
		}
	case FormatDetectionOut:
	default:
		return fmt.Errorf("unknown detection format %q", c.Format)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold >= 1 {
		return fmt.Errorf("confidence threshold must be in [0,1), got %v", c.ConfThreshold)
	}
	if c.Asset == "" {
		return fmt.Errorf("empty model asset name")
	}
	return nil
}

type decoder interface {
	outputNames() (inputs, outputs []string)
	decode(outputs [][]float32, scale float32, width, height int) ([]Face, error)
}

func newDecoder(c Config) decoder {
	if c.Format == FormatDetectionOut {
		return &detectionOutDecoder{inputSize: c.InputSize, confThreshold: c.ConfThreshold}
	}
	return newSCRFDDecoder(c.InputSize, c.ConfThreshold)
}

// Detector is one face detection engine handle. It is not safe for
// concurrent use; distinct Detectors share no state.
type Detector struct {
	id      string
	cfg     Config
	loader  inference.Loader
	guard   lifecycle.Guard
	net     inference.Network
	decoder decoder
	logger  *logrus.Entry
}

// Option customises a Detector at allocation
type Option func(*Detector)

// WithConfig overrides DefaultConfig
func WithConfig(cfg Config) Option {
	return func(d *Detector) {
		d.cfg = cfg
	}
}

// WithLoader sets the model backend
func WithLoader(l inference.Loader) Option {
	return func(d *Detector) {
		d.loader = l
	}
}

// New allocates an unloaded detector. It never fails.
func New(opts ...Option) *Detector {
	d := &Detector{
		id:  uuid.NewString(),
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.loader == nil {
		d.loader = &inference.ORTLoader{ModelDir: "models"}
	}
	d.logger = log.WithEngine("detector", d.id)
	return d
}

// ID identifies the handle in logs
func (d *Detector) ID() string {
	return d.id
}

// State returns the lifecycle state
func (d *Detector) State() lifecycle.State {
	return d.guard.State()
}

// LoadModel binds the detection model. On failure the handle stays
// unloaded and the call may be retried.
func (d *Detector) LoadModel() error {
	const op = "detector.LoadModel"

	if err := d.guard.CanLoad(op); err != nil {
		d.warn(err)
		return err
	}
	if err := d.cfg.validate(); err != nil {
		uerr := errors.NewUsageError(op, err.Error())
		d.warn(uerr)
		return uerr
	}

	dec := newDecoder(d.cfg)
	inputs, outputs := dec.outputNames()

	net, err := d.loader.Load(inference.Asset{Name: d.cfg.Asset, Inputs: inputs, Outputs: outputs})
	if err != nil {
		if errors.CodeOf(err) != errors.ErrorAsset {
			err = errors.NewAssetError(op, d.cfg.Asset, err)
		}
		d.logger.WithField("error", err.Error()).Error("failed to load detection model")
		return err
	}

	d.net = net
	d.decoder = dec
	d.guard.MarkLoaded()

	d.logger.WithFields(logrus.Fields{
		"asset":      d.cfg.Asset,
		"format":     d.cfg.Format,
		"input_size": d.cfg.InputSize,
	}).Info("detection model loaded")
	return nil
}

// DetectImage finds faces in a decoded, upright image
func (d *Detector) DetectImage(img image.Image) ([]FaceBox, error) {
	const op = "detector.DetectImage"

	if err := d.guard.Ready(op); err != nil {
		d.warn(err)
		return nil, err
	}
	src, err := frame.FromImage(img)
	if err != nil {
		uerr := errors.NewUsageError(op, err.Error())
		d.warn(uerr)
		return nil, uerr
	}
	return d.detect(op, src)
}

// DetectRGBA finds faces in a borrowed RGBA8 buffer
func (d *Detector) DetectRGBA(rgba []byte, width, height, stride int) ([]FaceBox, error) {
	const op = "detector.DetectRGBA"

	if err := d.guard.Ready(op); err != nil {
		d.warn(err)
		return nil, err
	}
	src, err := frame.FromRGBA(rgba, width, height, stride)
	if err != nil {
		uerr := errors.NewUsageError(op, err.Error())
		d.warn(uerr)
		return nil, uerr
	}
	return d.detect(op, src)
}

// DetectYUV finds faces in a raw 4:2:0 buffer. Boxes are in the upright
// frame described by the orientation.
func (d *Detector) DetectYUV(yuv []byte, width, height int, o frame.Orientation) ([]FaceBox, error) {
	const op = "detector.DetectYUV"

	if err := d.guard.Ready(op); err != nil {
		d.warn(err)
		return nil, err
	}
	src, err := frame.NewYUV(yuv, width, height, d.cfg.Layout, o)
	if err != nil {
		uerr := errors.NewUsageError(op, err.Error())
		d.warn(uerr)
		return nil, uerr
	}
	return d.detect(op, src)
}

// Detect finds faces in an already adapted frame
func (d *Detector) Detect(src frame.Source) ([]FaceBox, error) {
	const op = "detector.Detect"

	if err := d.guard.Ready(op); err != nil {
		d.warn(err)
		return nil, err
	}
	return d.detect(op, src)
}

// detect runs one forward pass. Zero faces is an empty, non-nil slice.
func (d *Detector) detect(op string, src frame.Source) ([]FaceBox, error) {
	width, height := src.Size()

	input, scale := d.preprocess(src)
	shape := []int64{1, 3, int64(d.cfg.InputSize), int64(d.cfg.InputSize)}

	outputs, err := d.net.Run(input, shape)
	if err != nil {
		return nil, errors.NewInferenceError(op, d.cfg.Asset, err)
	}

	faces, err := d.decoder.decode(outputs, scale, width, height)
	if err != nil {
		return nil, errors.NewInferenceError(op, d.cfg.Asset, err)
	}

	faces = nms(faces, d.cfg.NMSThreshold)
	boxes := toBoxes(faces, width, height)

	d.logger.WithFields(logrus.Fields{
		"faces":  len(boxes),
		"width":  width,
		"height": height,
	}).Debug("detection finished")
	return boxes, nil
}

// Close releases the model. A second Close is a usage error.
func (d *Detector) Close() error {
	const op = "detector.Close"

	if err := d.guard.Detach(op); err != nil {
		d.warn(err)
		return err
	}

	var err error
	if d.net != nil {
		err = d.net.Close()
		d.net = nil
	}
	d.decoder = nil

	d.logger.Info("detector released")
	if err != nil {
		return fmt.Errorf("failed to release detection model: %w", err)
	}
	return nil
}

func (d *Detector) warn(err error) {
	fields := logrus.Fields{"error": err.Error()}
	if e, ok := err.(*errors.EngineError); ok {
		fields = e.ToMap()
	}
	d.logger.WithFields(fields).Warn("rejected call")
}
