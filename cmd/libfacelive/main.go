// Command libfacelive builds the C boundary of the engines:
//
//	go build -buildmode=c-shared -o libfacelive.so ./cmd/libfacelive
//
// Handles are uintptr_t values. The structures are declared in
// internal/cabi/facelive.h. Detection results are malloc'd CFaceBox arrays
// released with engine_face_detector_free_faces. Settings come from
// FACELIVE_* environment variables and an optional .env file.
package main

/*
#cgo CFLAGS: -I${SRCDIR}/../../internal/cabi
#include "facelive.h"
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/dudu/facelive/internal/bridge"
	"github.com/dudu/facelive/internal/cabi"
	"github.com/dudu/facelive/internal/config"
	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/liveness"
	"github.com/dudu/facelive/internal/log"
)

var (
	instance *bridge.Bridge
	once     sync.Once
)

// engines builds the process-wide bridge on first use
func engines() *bridge.Bridge {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			log.Error(log.Fields{"error": err.Error()}, "invalid configuration, using defaults")
			cfg = &config.Config{
				ModelDir:      "models",
				DetectSize:    640,
				DetectFormat:  string(detector.FormatSCRFD),
				ConfThreshold: 0.5,
				NMSThreshold:  0.4,
				YUVLayout:     "nv21",
				Aggregation:   string(liveness.AggregateProduct),
				LogLevel:      "info",
			}
		}
		log.Setup(cfg.LogOptions())

		loader := cfg.Loader()
		detCfg := cfg.Detector()
		instance = bridge.New(
			func() *detector.Detector {
				return detector.New(detector.WithConfig(detCfg), detector.WithLoader(loader))
			},
			func() *liveness.Engine {
				return liveness.New(
					liveness.WithLoader(loader),
					liveness.WithLayout(cfg.Layout()),
					liveness.WithAggregation(liveness.Aggregation(cfg.Aggregation)),
				)
			},
		)
		log.Info(log.Fields{"model_dir": cfg.ModelDir, "layout": cfg.Layout().String()}, "facelive bridge ready")
	})
	return instance
}

func setCount(out *C.int, n int) {
	if out != nil {
		*out = C.int(n)
	}
}

func exportFaces(b *bridge.Bridge, faces []detector.FaceBox, count *C.int) *C.CFaceBox {
	ptr, n := cabi.ExportFaces(b, faces)
	setCount(count, n)
	return (*C.CFaceBox)(ptr)
}

//export engine_face_detector_allocate
func engine_face_detector_allocate() C.uintptr_t {
	return C.uintptr_t(engines().NewDetector())
}

//export engine_face_detector_deallocate
func engine_face_detector_deallocate(h C.uintptr_t) C.int {
	return C.int(engines().DetectorDeallocate(bridge.Handle(h)))
}

//export engine_face_detector_load_model
func engine_face_detector_load_model(h C.uintptr_t) C.int {
	return C.int(engines().DetectorLoad(bridge.Handle(h)))
}

//export engine_face_detector_detect_image
func engine_face_detector_detect_image(h C.uintptr_t, rgba unsafe.Pointer, width, height, stride C.int, count *C.int) *C.CFaceBox {
	b := engines()
	buf := cabi.RGBAView(rgba, int(width), int(height), int(stride))
	faces := b.DetectRGBA(bridge.Handle(h), buf, int(width), int(height), int(stride))
	return exportFaces(b, faces, count)
}

//export engine_face_detector_detect_yuv
func engine_face_detector_detect_yuv(h C.uintptr_t, yuv unsafe.Pointer, width, height, orientation C.int, count *C.int) *C.CFaceBox {
	b := engines()
	buf := cabi.YUVView(yuv, int(width), int(height))
	faces := b.DetectYUV(bridge.Handle(h), buf, int(width), int(height), int(orientation))
	return exportFaces(b, faces, count)
}

//export engine_face_detector_free_faces
func engine_face_detector_free_faces(faces *C.CFaceBox) C.int {
	return C.int(cabi.FreeFaces(engines(), unsafe.Pointer(faces)))
}

//export engine_live_allocate
func engine_live_allocate() C.uintptr_t {
	return C.uintptr_t(engines().NewEngine())
}

//export engine_live_deallocate
func engine_live_deallocate(h C.uintptr_t) C.int {
	return C.int(engines().EngineDeallocate(bridge.Handle(h)))
}

//export engine_live_load_model
func engine_live_load_model(h C.uintptr_t, configs *C.CModelConfig, count C.int) C.int {
	models := cabi.ModelConfigs(unsafe.Pointer(configs), int(count))
	return C.int(engines().EngineLoad(bridge.Handle(h), models))
}

//export engine_live_detect_yuv
func engine_live_detect_yuv(h C.uintptr_t, yuv unsafe.Pointer, width, height, orientation, left, top, right, bottom C.int) C.float {
	buf := cabi.YUVView(yuv, int(width), int(height))
	return C.float(engines().EngineScore(bridge.Handle(h), buf, int(width), int(height), int(orientation),
		int(left), int(top), int(right), int(bottom)))
}

func main() {}
