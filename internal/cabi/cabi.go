// Package cabi converts between the C structures in facelive.h and the
// engine types, and owns the malloc'd result blocks handed to C callers.
//
// Pointers cross package boundaries as unsafe.Pointer since cgo types are
// local to the package that declares them.
package cabi

/*
#include <stdlib.h>
#include "facelive.h"
*/
import "C"

import (
	"unsafe"

	"github.com/dudu/facelive/internal/bridge"
	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/liveness"
)

// ExportFaces copies faces into a malloc'd CFaceBox block tracked by b.
// A nil slice is a failed call and yields a null block with
// bridge.NoCount. The block holds at least one element so zero faces is
// never a null pointer.
func ExportFaces(b *bridge.Bridge, faces []detector.FaceBox) (unsafe.Pointer, int) {
	if faces == nil {
		return nil, bridge.NoCount
	}

	n := max(len(faces), 1)
	ptr := (*C.CFaceBox)(C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(C.CFaceBox{}))))
	if ptr == nil {
		return nil, bridge.NoCount
	}

	out := unsafe.Slice(ptr, n)
	for i, f := range faces {
		out[i] = C.CFaceBox{
			left:       C.int(f.Left),
			top:        C.int(f.Top),
			right:      C.int(f.Right),
			bottom:     C.int(f.Bottom),
			confidence: C.float(f.Confidence),
		}
	}
	b.TrackResult(uintptr(unsafe.Pointer(ptr)))
	return unsafe.Pointer(ptr), len(faces)
}

// FreeFaces releases a block returned by ExportFaces. Null is a no-op.
// A block that is not outstanding is left alone and reported as a usage
// error.
func FreeFaces(b *bridge.Bridge, p unsafe.Pointer) int {
	ok, status := b.ReleaseResult(uintptr(p))
	if ok {
		C.free(p)
	}
	return status
}

// Faces reads n boxes from a CFaceBox block
func Faces(p unsafe.Pointer, n int) []detector.FaceBox {
	if p == nil || n <= 0 {
		return nil
	}
	in := unsafe.Slice((*C.CFaceBox)(p), n)
	faces := make([]detector.FaceBox, n)
	for i, c := range in {
		faces[i] = detector.FaceBox{
			Left:       int32(c.left),
			Top:        int32(c.top),
			Right:      int32(c.right),
			Bottom:     int32(c.bottom),
			Confidence: float32(c.confidence),
		}
	}
	return faces
}

// ModelConfigs reads count CModelConfig entries. A null array or a
// non-positive count yields nil, which the engine rejects as a usage
// error.
func ModelConfigs(p unsafe.Pointer, count int) []liveness.ModelConfig {
	if p == nil || count <= 0 {
		return nil
	}
	var models []liveness.ModelConfig
	for _, c := range unsafe.Slice((*C.CModelConfig)(p), count) {
		name := ""
		if c.name != nil {
			name = C.GoString(c.name)
		}
		models = append(models, liveness.ModelConfig{
			Scale:     float32(c.scale),
			ShiftX:    float32(c.shift_x),
			ShiftY:    float32(c.shift_y),
			Height:    int(c.height),
			Width:     int(c.width),
			Name:      name,
			OrgResize: bool(c.org_resize),
		})
	}
	return models
}

// AllocModelConfigs builds a C array from models for hosts written in Go.
// The returned func frees the array and its strings.
func AllocModelConfigs(models []liveness.ModelConfig) (unsafe.Pointer, func()) {
	if len(models) == 0 {
		return nil, func() {}
	}
	ptr := (*C.CModelConfig)(C.calloc(C.size_t(len(models)), C.size_t(unsafe.Sizeof(C.CModelConfig{}))))
	out := unsafe.Slice(ptr, len(models))
	for i, m := range models {
		out[i] = C.CModelConfig{
			scale:      C.float(m.Scale),
			shift_x:    C.float(m.ShiftX),
			shift_y:    C.float(m.ShiftY),
			height:     C.int(m.Height),
			width:      C.int(m.Width),
			name:       C.CString(m.Name),
			org_resize: C.bool(m.OrgResize),
		}
	}
	return unsafe.Pointer(ptr), func() {
		for _, c := range out {
			C.free(unsafe.Pointer(c.name))
		}
		C.free(unsafe.Pointer(ptr))
	}
}

// YUVView wraps a caller's 4:2:0 buffer without copying. Null or
// non-positive dimensions yield nil.
func YUVView(p unsafe.Pointer, width, height int) []byte {
	if p == nil || width <= 0 || height <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), frame.BufferSize(width, height))
}

// RGBAView wraps a caller's RGBA8 buffer without copying. The view ends
// at the last pixel of the last row so trailing row padding is not read.
func RGBAView(p unsafe.Pointer, width, height, stride int) []byte {
	if p == nil || width <= 0 || height <= 0 || stride < width*4 {
		return nil
	}
	return unsafe.Slice((*byte)(p), stride*(height-1)+width*4)
}
