package cabi

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/dudu/facelive/internal/bridge"
	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference/inferencetest"
	"github.com/dudu/facelive/internal/liveness"
)

func testBridge(rows []float32) (*bridge.Bridge, bridge.Handle) {
	loader := inferencetest.NewLoader().Register("detection", inferencetest.Constant(rows))
	cfg := detector.DetectionOutConfig()
	cfg.InputSize = 32
	cfg.Layout = frame.I420
	b := bridge.New(
		func() *detector.Detector {
			return detector.New(detector.WithConfig(cfg), detector.WithLoader(loader))
		},
		func() *liveness.Engine {
			return liveness.New(liveness.WithLoader(loader), liveness.WithLayout(frame.I420))
		},
	)
	h := b.NewDetector()
	b.DetectorLoad(h)
	return b, h
}

func grayFrame(width, height int) []byte {
	buf := make([]byte, frame.BufferSize(width, height))
	for i := range buf {
		buf[i] = 128
	}
	return buf
}

func TestExportZeroFaces(t *testing.T) {
	b, h := testBridge([]float32{})

	ptr, n := ExportFaces(b, b.DetectYUV(h, grayFrame(32, 32), 32, 32, 0))
	if ptr == nil {
		t.Fatal("Expected non-null block for zero faces")
	}
	if n != 0 {
		t.Errorf("Expected count 0, got %d", n)
	}
	if b.Outstanding() != 1 {
		t.Errorf("Expected one outstanding block, got %d", b.Outstanding())
	}
	if st := FreeFaces(b, ptr); st != bridge.StatusOK {
		t.Errorf("Expected free to succeed, got %d", st)
	}
}

func TestExportFailure(t *testing.T) {
	b, h := testBridge([]float32{})

	// orientation 9 fails the call
	ptr, n := ExportFaces(b, b.DetectYUV(h, grayFrame(32, 32), 32, 32, 9))
	if ptr != nil {
		t.Errorf("Expected null block on failure, got %p", ptr)
	}
	if n != bridge.NoCount {
		t.Errorf("Expected count %d, got %d", bridge.NoCount, n)
	}
	if b.Outstanding() != 0 {
		t.Errorf("Expected nothing tracked, got %d", b.Outstanding())
	}
}

func TestFreeFaces(t *testing.T) {
	rows := []float32{1, 0.9, 0.25, 0.25, 0.75, 0.75}
	b, h := testBridge(rows)
	buf := grayFrame(32, 32)

	faces := b.DetectYUV(h, buf, 32, 32, 0)
	first, n := ExportFaces(b, faces)
	if n != 1 {
		t.Fatalf("Expected one face, got %d", n)
	}
	if got := Faces(first, n); !reflect.DeepEqual(got, faces) {
		t.Errorf("Expected %v, got %v", faces, got)
	}

	if st := FreeFaces(b, first); st != bridge.StatusOK {
		t.Fatalf("Expected free to succeed, got %d", st)
	}
	if st := FreeFaces(b, first); st != bridge.StatusUsage {
		t.Errorf("Expected usage status for double free, got %d", st)
	}
	if st := FreeFaces(b, nil); st != bridge.StatusOK {
		t.Errorf("Expected null free to be a no-op, got %d", st)
	}
	if st := FreeFaces(b, unsafe.Pointer(&buf[0])); st != bridge.StatusUsage {
		t.Errorf("Expected usage status for foreign pointer, got %d", st)
	}

	// Each detection owns its own block
	second, n := ExportFaces(b, b.DetectYUV(h, buf, 32, 32, 0))
	third, _ := ExportFaces(b, b.DetectYUV(h, buf, 32, 32, 0))
	if second == third {
		t.Fatal("Expected distinct blocks for outstanding results")
	}
	if got := Faces(second, n); !reflect.DeepEqual(got, faces) {
		t.Errorf("Expected %v after re-detect, got %v", faces, got)
	}
	if b.Outstanding() != 2 {
		t.Errorf("Expected two outstanding blocks, got %d", b.Outstanding())
	}
	if st := FreeFaces(b, third); st != bridge.StatusOK {
		t.Errorf("Expected free to succeed, got %d", st)
	}
	if st := FreeFaces(b, second); st != bridge.StatusOK {
		t.Errorf("Expected free to succeed, got %d", st)
	}
	if b.Outstanding() != 0 {
		t.Errorf("Expected no outstanding blocks, got %d", b.Outstanding())
	}
}

func TestModelConfigs(t *testing.T) {
	models := []liveness.ModelConfig{
		{Scale: 2.7, Width: 80, Height: 80, Name: "2.7_80x80_MiniFASNetV2"},
		{Scale: 4, ShiftX: 0.1, ShiftY: -0.2, Width: 80, Height: 60, Name: "4_0_0_80x80_MiniFASNetV1SE", OrgResize: true},
	}
	ptr, free := AllocModelConfigs(models)
	defer free()

	if got := ModelConfigs(ptr, len(models)); !reflect.DeepEqual(got, models) {
		t.Errorf("Expected %v, got %v", models, got)
	}
	if got := ModelConfigs(ptr, 1); len(got) != 1 || got[0].Name != models[0].Name {
		t.Errorf("Expected first config only, got %v", got)
	}
	if got := ModelConfigs(ptr, 0); got != nil {
		t.Errorf("Expected nil for zero count, got %v", got)
	}
	if got := ModelConfigs(nil, 2); got != nil {
		t.Errorf("Expected nil for null array, got %v", got)
	}
}

func TestViews(t *testing.T) {
	buf := grayFrame(6, 4)
	if v := YUVView(unsafe.Pointer(&buf[0]), 6, 4); len(v) != len(buf) {
		t.Errorf("Expected %d bytes, got %d", len(buf), len(v))
	}
	if v := YUVView(nil, 6, 4); v != nil {
		t.Errorf("Expected nil view for null buffer, got %d bytes", len(v))
	}

	rgba := make([]byte, 32*3)
	if v := RGBAView(unsafe.Pointer(&rgba[0]), 6, 3, 32); len(v) != 32*2+24 {
		t.Errorf("Expected %d bytes, got %d", 32*2+24, len(v))
	}
	if v := RGBAView(unsafe.Pointer(&rgba[0]), 6, 3, 20); v != nil {
		t.Errorf("Expected nil view for short stride, got %d bytes", len(v))
	}
}
