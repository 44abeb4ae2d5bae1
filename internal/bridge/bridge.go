// Package bridge maps opaque integer handles onto engines for the C
// boundary and translates engine errors into status codes.
package bridge

import (
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/liveness"
	"github.com/dudu/facelive/internal/log"
)

// Status codes returned across the C boundary
const (
	StatusOK    = 0
	StatusUsage = -1
	StatusAsset = -2
)

// NoCount is the face count reported with a null result
const NoCount = -1

// Handle identifies one engine. Zero is never issued.
type Handle uintptr

// Status translates an engine error into a status code. Runtime
// inference failures have no code of their own and report as usage
// errors of the call.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	if errors.CodeOf(err) == errors.ErrorAsset {
		return StatusAsset
	}
	return StatusUsage
}

// Bridge owns every engine created through the C boundary
type Bridge struct {
	mu          sync.Mutex
	next        Handle
	detectors   map[Handle]*detector.Detector
	engines     map[Handle]*liveness.Engine
	retired     map[Handle]struct{}
	results     map[uintptr]struct{}
	newDetector func() *detector.Detector
	newEngine   func() *liveness.Engine
}

// New creates a bridge using the given engine constructors
func New(newDetector func() *detector.Detector, newEngine func() *liveness.Engine) *Bridge {
	return &Bridge{
		detectors:   make(map[Handle]*detector.Detector),
		engines:     make(map[Handle]*liveness.Engine),
		retired:     make(map[Handle]struct{}),
		results:     make(map[uintptr]struct{}),
		newDetector: newDetector,
		newEngine:   newEngine,
	}
}

func (b *Bridge) issue() Handle {
	b.next++
	return b.next
}

// NewDetector allocates an unloaded detector
func (b *Bridge) NewDetector() Handle {
	d := b.newDetector()

	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.issue()
	b.detectors[h] = d
	return h
}

func (b *Bridge) detector(op string, h Handle) (*detector.Detector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.detectors[h]
	if !ok {
		return nil, b.missing(op, h)
	}
	return d, nil
}

// missing reports a handle that is retired or was never issued.
// Callers hold b.mu.
func (b *Bridge) missing(op string, h Handle) error {
	if _, ok := b.retired[h]; ok {
		return errors.NewUsageErrorf(op, "handle %d already deallocated", h)
	}
	return errors.NewUsageErrorf(op, "unknown handle %d", h)
}

// DetectorLoad loads the detection model
func (b *Bridge) DetectorLoad(h Handle) int {
	d, err := b.detector("bridge.DetectorLoad", h)
	if err != nil {
		return b.reject(err)
	}
	return Status(d.LoadModel())
}

// DetectRGBA runs detection on an RGBA8 buffer. A nil slice means
// failure; zero faces is an empty non-nil slice.
func (b *Bridge) DetectRGBA(h Handle, rgba []byte, width, height, stride int) []detector.FaceBox {
	d, err := b.detector("bridge.DetectRGBA", h)
	if err != nil {
		b.reject(err)
		return nil
	}
	faces, err := d.DetectRGBA(rgba, width, height, stride)
	if err != nil {
		return nil
	}
	return faces
}

// DetectYUV runs detection on a raw 4:2:0 buffer
func (b *Bridge) DetectYUV(h Handle, yuv []byte, width, height, orientation int) []detector.FaceBox {
	d, err := b.detector("bridge.DetectYUV", h)
	if err != nil {
		b.reject(err)
		return nil
	}
	faces, err := d.DetectYUV(yuv, width, height, frame.Orientation(orientation))
	if err != nil {
		return nil
	}
	return faces
}

// DetectorDeallocate releases the detector. Only the handle number is
// remembered so a second call reports a usage error.
func (b *Bridge) DetectorDeallocate(h Handle) int {
	b.mu.Lock()
	d, ok := b.detectors[h]
	if !ok {
		err := b.missing("bridge.DetectorDeallocate", h)
		b.mu.Unlock()
		return b.reject(err)
	}
	delete(b.detectors, h)
	b.retired[h] = struct{}{}
	b.mu.Unlock()

	return Status(d.Close())
}

// NewEngine allocates an unloaded liveness engine
func (b *Bridge) NewEngine() Handle {
	e := b.newEngine()

	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.issue()
	b.engines[h] = e
	return h
}

func (b *Bridge) engine(op string, h Handle) (*liveness.Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.engines[h]
	if !ok {
		return nil, b.missing(op, h)
	}
	return e, nil
}

// EngineLoad loads the liveness sub-models in order
func (b *Bridge) EngineLoad(h Handle, configs []liveness.ModelConfig) int {
	e, err := b.engine("bridge.EngineLoad", h)
	if err != nil {
		return b.reject(err)
	}
	return Status(e.LoadModel(configs))
}

// EngineScore scores one box, returning liveness.InvalidScore on failure
func (b *Bridge) EngineScore(h Handle, yuv []byte, width, height, orientation int, left, top, right, bottom int) float32 {
	e, err := b.engine("bridge.EngineScore", h)
	if err != nil {
		b.reject(err)
		return liveness.InvalidScore
	}
	// Built literally: image.Rect would swap inverted corners
	box := image.Rectangle{Min: image.Pt(left, top), Max: image.Pt(right, bottom)}
	score, err := e.Score(yuv, width, height, frame.Orientation(orientation), box)
	if err != nil {
		return liveness.InvalidScore
	}
	return score
}

// EngineDeallocate releases the liveness engine
func (b *Bridge) EngineDeallocate(h Handle) int {
	b.mu.Lock()
	e, ok := b.engines[h]
	if !ok {
		err := b.missing("bridge.EngineDeallocate", h)
		b.mu.Unlock()
		return b.reject(err)
	}
	delete(b.engines, h)
	b.retired[h] = struct{}{}
	b.mu.Unlock()

	return Status(e.Close())
}

// Live returns how many detectors and liveness engines are allocated
func (b *Bridge) Live() (detectors, engines int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.detectors), len(b.engines)
}

// TrackResult records a result block handed to the caller
func (b *Bridge) TrackResult(ptr uintptr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[ptr] = struct{}{}
}

// ReleaseResult forgets a result block. The caller frees the memory only
// when this returns true. Zero is a no-op; an unknown or already
// released block is a usage error.
func (b *Bridge) ReleaseResult(ptr uintptr) (bool, int) {
	if ptr == 0 {
		return false, StatusOK
	}

	b.mu.Lock()
	_, ok := b.results[ptr]
	delete(b.results, ptr)
	b.mu.Unlock()

	if !ok {
		return false, b.reject(errors.NewUsageErrorf("bridge.ReleaseResult", "result %#x not outstanding", ptr))
	}
	return true, StatusOK
}

// Outstanding returns how many result blocks are not yet released
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

func (b *Bridge) reject(err error) int {
	fields := logrus.Fields{"error": err.Error()}
	if e, ok := err.(*errors.EngineError); ok {
		fields = e.ToMap()
	}
	log.Warn(fields, "rejected call")
	return Status(err)
}
