package liveness

import (
	stderrors "errors"
	"fmt"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference/inferencetest"
	"github.com/dudu/facelive/internal/lifecycle"
)

// lumaFrame returns an I420 frame with neutral chroma and luma from fn
func lumaFrame(width, height int, fn func(x, y int) byte) []byte {
	buf := make([]byte, frame.BufferSize(width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf[y*width+x] = fn(x, y)
		}
	}
	for i := width * height; i < len(buf); i++ {
		buf[i] = 128
	}
	return buf
}

func flat(x, y int) byte { return 128 }

func modelConfigs(names ...string) []ModelConfig {
	configs := make([]ModelConfig, len(names))
	for i, name := range names {
		configs[i] = ModelConfig{Scale: 2.7, Width: 16, Height: 16, Name: name}
	}
	return configs
}

func TestLoadModelRejectsBadConfigs(t *testing.T) {
	loader := inferencetest.NewLoader().Register("m1", inferencetest.Constant([]float32{0, 0}))
	e := New(WithLoader(loader))

	if err := e.LoadModel(nil); !stderrors.Is(err, errors.ErrUsage) {
		t.Fatalf("Expected usage error for zero configs, got %v", err)
	}

	bad := []ModelConfig{
		{Scale: 1, Width: 0, Height: 16, Name: "m1"},
		{Scale: 1, Width: 16, Height: -1, Name: "m1"},
		{Scale: 0, Width: 16, Height: 16, Name: "m1"},
		{Scale: 1, Width: 16, Height: 16, Name: ""},
	}
	for i, cfg := range bad {
		if err := e.LoadModel([]ModelConfig{cfg}); !stderrors.Is(err, errors.ErrUsage) {
			t.Errorf("config %d: expected usage error, got %v", i, err)
		}
	}
	if loader.Loads("m1") != 0 {
		t.Error("Expected no asset to be opened for invalid configs")
	}

	if err := e.LoadModel(modelConfigs("m1")); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if e.State() != lifecycle.Loaded {
		t.Errorf("Expected Loaded, got %v", e.State())
	}
}

func TestLoadModelRollsBackOnFailure(t *testing.T) {
	loader := inferencetest.NewLoader()
	for _, name := range []string{"m1", "m2", "m4", "m5"} {
		loader.Register(name, inferencetest.Constant([]float32{0, 0}))
	}
	e := New(WithLoader(loader))

	err := e.LoadModel(modelConfigs("m1", "m2", "m3", "m4", "m5"))
	if !stderrors.Is(err, errors.ErrAsset) {
		t.Fatalf("Expected asset error, got %v", err)
	}
	if !strings.Contains(err.Error(), "m3") {
		t.Errorf("Expected error to name m3, got %v", err)
	}

	opened := loader.Opened()
	if len(opened) != 2 {
		t.Fatalf("Expected 2 sub-models opened before failure, got %d", len(opened))
	}
	for _, n := range opened {
		if !n.Closed() {
			t.Errorf("Expected %s to be released on rollback", n.Name)
		}
	}
	if e.State() != lifecycle.Allocated {
		t.Errorf("Expected Allocated after failed load, got %v", e.State())
	}

	loader.Register("m3", inferencetest.Constant([]float32{0, 0}))
	if err := e.LoadModel(modelConfigs("m1", "m2", "m3", "m4", "m5")); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if got := len(e.Models()); got != 5 {
		t.Errorf("Expected 5 sub-models, got %d", got)
	}
}

func TestScoreAggregation(t *testing.T) {
	tests := []struct {
		name        string
		aggregation Aggregation
		want        float32
	}{
		{"product", AggregateProduct, 0.4},
		{"mean", AggregateMean, 0.65},
	}

	buf := lumaFrame(64, 48, flat)
	box := image.Rect(20, 10, 40, 30)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := inferencetest.NewLoader().
				Register("a", inferencetest.Constant([]float32{0.2, 0.8})).
				Register("b", inferencetest.Constant([]float32{0.5, 0.5}))
			e := New(WithLoader(loader), WithLayout(frame.I420), WithSoftmax(false), WithAggregation(tt.aggregation))
			if err := e.LoadModel(modelConfigs("a", "b")); err != nil {
				t.Fatalf("LoadModel failed: %v", err)
			}
			defer e.Close()

			got, err := e.Score(buf, 64, 48, frame.Up, box)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestScoreSoftmax(t *testing.T) {
	loader := inferencetest.NewLoader().
		Register("a", inferencetest.Constant([]float32{0, float32(math.Log(3)), -50}))
	e := New(WithLoader(loader), WithLayout(frame.I420))
	if err := e.LoadModel(modelConfigs("a")); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}

	got, err := e.Score(lumaFrame(64, 48, flat), 64, 48, frame.Up, image.Rect(10, 10, 30, 30))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(float64(got)-0.75) > 1e-4 {
		t.Errorf("Expected 0.75, got %v", got)
	}

	_, shape := loader.Opened()[0].LastInput()
	if fmt.Sprint(shape) != "[1 3 16 16]" {
		t.Errorf("Expected shape [1 3 16 16], got %v", shape)
	}
}

func TestScoreRejectsBadBoxes(t *testing.T) {
	loader := inferencetest.NewLoader().Register("a", inferencetest.Constant([]float32{0, 0}))
	e := New(WithLoader(loader), WithLayout(frame.I420))
	if err := e.LoadModel(modelConfigs("a")); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	buf := lumaFrame(64, 48, flat)

	boxes := map[string]image.Rectangle{
		"outside":  image.Rect(200, 200, 220, 220),
		"empty":    image.Rect(10, 10, 10, 30),
		"inverted": {Min: image.Pt(30, 30), Max: image.Pt(10, 10)},
	}
	for name, box := range boxes {
		score, err := e.Score(buf, 64, 48, frame.Up, box)
		if score != InvalidScore {
			t.Errorf("%s: expected InvalidScore, got %v", name, score)
		}
		if !stderrors.Is(err, errors.ErrUsage) {
			t.Errorf("%s: expected usage error, got %v", name, err)
		}
	}

	score, err := e.Score(buf[:100], 64, 48, frame.Up, image.Rect(10, 10, 30, 30))
	if score != InvalidScore || !stderrors.Is(err, errors.ErrUsage) {
		t.Errorf("Expected usage error for short buffer, got %v, %v", score, err)
	}
}

func TestScoreClipsPartialBoxes(t *testing.T) {
	loader := inferencetest.NewLoader().Register("a", inferencetest.Constant([]float32{0, 0}))
	e := New(WithLoader(loader), WithLayout(frame.I420))
	if err := e.LoadModel(modelConfigs("a")); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	buf := lumaFrame(64, 48, flat)

	boxes := map[string]image.Rectangle{
		"top-left":     image.Rect(-100, -100, 10, 10),
		"bottom-right": image.Rect(50, 40, 90, 80),
		"covering":     image.Rect(-10, -10, 100, 100),
	}
	for name, box := range boxes {
		score, err := e.Score(buf, 64, 48, frame.Up, box)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if score != 0.5 {
			t.Errorf("%s: expected 0.5, got %v", name, score)
		}
	}
}

func TestScoreInferenceFailure(t *testing.T) {
	loader := inferencetest.NewLoader().
		Register("a", inferencetest.Constant([]float32{0, 0})).
		Register("b", func([]float32, []int64) ([][]float32, error) {
			return nil, fmt.Errorf("device lost")
		}).
		Register("c", inferencetest.Constant([]float32{0.5}))

	for _, names := range [][]string{{"a", "b"}, {"c"}} {
		e := New(WithLoader(loader), WithLayout(frame.I420))
		if err := e.LoadModel(modelConfigs(names...)); err != nil {
			t.Fatalf("LoadModel failed: %v", err)
		}
		score, err := e.Score(lumaFrame(64, 48, flat), 64, 48, frame.Up, image.Rect(10, 10, 30, 30))
		if score != InvalidScore {
			t.Errorf("%v: expected InvalidScore, got %v", names, score)
		}
		if !stderrors.Is(err, errors.ErrInference) {
			t.Errorf("%v: expected inference error, got %v", names, err)
		}
		e.Close()
	}
}

func TestLifecycleMisuse(t *testing.T) {
	loader := inferencetest.NewLoader().Register("a", inferencetest.Constant([]float32{0, 0}))
	e := New(WithLoader(loader), WithLayout(frame.I420))
	buf := lumaFrame(64, 48, flat)
	box := image.Rect(10, 10, 30, 30)

	if score, err := e.Score(buf, 64, 48, frame.Up, box); score != InvalidScore || !stderrors.Is(err, errors.ErrUsage) {
		t.Errorf("Expected usage error before load, got %v, %v", score, err)
	}
	if err := e.LoadModel(modelConfigs("a")); err != nil {
		t.Fatalf("LoadModel failed: %v", err)
	}
	if err := e.LoadModel(modelConfigs("a")); !stderrors.Is(err, errors.ErrUsage) {
		t.Errorf("Expected usage error for second load, got %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !loader.Opened()[0].Closed() {
		t.Error("Expected sub-model released on Close")
	}
	if score, err := e.Score(buf, 64, 48, frame.Up, box); score != InvalidScore || !stderrors.Is(err, errors.ErrUsage) {
		t.Errorf("Expected usage error after close, got %v, %v", score, err)
	}
	if err := e.Close(); !stderrors.Is(err, errors.ErrUsage) {
		t.Errorf("Expected usage error for double close, got %v", err)
	}
}

func TestExpandBox(t *testing.T) {
	tests := []struct {
		name string
		box  image.Rectangle
		cfg  ModelConfig
		want image.Rectangle
	}{
		{"slides right from left edge", image.Rect(0, 0, 20, 20), ModelConfig{Scale: 2}, image.Rect(0, 0, 40, 40)},
		{"slides left from right edge", image.Rect(50, 30, 60, 40), ModelConfig{Scale: 2}, image.Rect(43, 25, 63, 45)},
		{"shift", image.Rect(20, 10, 30, 20), ModelConfig{Scale: 1, ShiftX: 0.5}, image.Rect(25, 10, 35, 20)},
		{"scale capped by frame", image.Rect(20, 20, 28, 28), ModelConfig{Scale: 10}, image.Rect(1, 1, 48, 48)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandBox(tt.box, 64, 48, tt.cfg)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if !got.In(image.Rect(0, 0, 64, 48)) {
				t.Errorf("Expanded box %v leaves the frame", got)
			}
		})
	}
}

func TestStrategiesDifferAtCropEdge(t *testing.T) {
	// Bright left of column 10, dark from column 10 on
	buf := lumaFrame(64, 48, func(x, y int) byte {
		if x < 10 {
			return 235
		}
		return 16
	})
	src, err := frame.NewYUV(buf, 64, 48, frame.I420, frame.Up)
	if err != nil {
		t.Fatalf("NewYUV failed: %v", err)
	}
	box := image.Rect(10, 10, 18, 18)
	cfg := ModelConfig{Scale: 1, Width: 16, Height: 16, Name: "m"}

	cropped := CropThenResize{cfg: cfg}.Prepare(src, box)
	cfg.OrgResize = true
	resized := NewPreprocessor(cfg).Prepare(src, box)

	if len(cropped) != 3*16*16 || len(resized) != 3*16*16 {
		t.Fatalf("Expected 768 values, got %d and %d", len(cropped), len(resized))
	}

	// First column samples between pixels 9 and 10
	if cropped[0] != 16 {
		t.Errorf("Expected crop to repeat its border pixel, got %v", cropped[0])
	}
	if math.Abs(float64(resized[0])-70.75) > 1e-3 {
		t.Errorf("Expected full-frame resize to blend column 9, got %v", resized[0])
	}

	// Interior samples agree
	for _, i := range []int{8, 16*8 + 8, 256 + 16*8 + 8} {
		if cropped[i] != resized[i] {
			t.Errorf("index %d: expected equal interior samples, got %v and %v", i, cropped[i], resized[i])
		}
	}
}

func TestReadManifest(t *testing.T) {
	manifest := `{"models": [
		{"name": "2.7_80x80_MiniFASNetV2", "scale": 2.7, "shift_x": 0, "shift_y": 0, "width": 80, "height": 80},
		{"name": "4_0_0_80x80_MiniFASNetV1SE", "scale": 4.0, "width": 80, "height": 80, "org_resize": true}
	]}`
	configs, err := ReadManifest(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("Expected 2 configs, got %d", len(configs))
	}
	if configs[1].Name != "4_0_0_80x80_MiniFASNetV1SE" || !configs[1].OrgResize || configs[1].Scale != 4 {
		t.Errorf("Unexpected second config: %+v", configs[1])
	}

	if _, err := ReadManifest(strings.NewReader(`{"models": []}`)); err == nil {
		t.Error("Expected error for empty manifest")
	}
	if _, err := ReadManifest(strings.NewReader(`{"models": [{"name": "x", "scale": 1, "width": 0, "height": 80}]}`)); err == nil {
		t.Error("Expected error for zero width")
	}
}
