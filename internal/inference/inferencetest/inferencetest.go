// Package inferencetest provides in-memory inference backends for tests.
package inferencetest

import (
	"fmt"
	"os"
	"sync"

	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/inference"
)

// RunFunc computes outputs for one input tensor
type RunFunc func(input []float32, shape []int64) ([][]float32, error)

// Network is a fake inference.Network backed by a RunFunc
type Network struct {
	Name   string
	run    RunFunc
	mu     sync.Mutex
	calls  int
	closed bool
	last   []float32
	shape  []int64
}

// NewNetwork wraps fn
func NewNetwork(name string, fn RunFunc) *Network {
	return &Network{Name: name, run: fn}
}

func (n *Network) Run(input []float32, shape []int64) ([][]float32, error) {
	n.mu.Lock()
	n.calls++
	n.last = append(n.last[:0], input...)
	n.shape = append(n.shape[:0], shape...)
	closed := n.closed
	n.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("network %s used after close", n.Name)
	}
	return n.run(input, shape)
}

func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

// Calls returns how many times Run was invoked
func (n *Network) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// Closed reports whether Close was called
func (n *Network) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// LastInput returns a copy of the most recent input tensor and shape
func (n *Network) LastInput() ([]float32, []int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]float32(nil), n.last...), append([]int64(nil), n.shape...)
}

// Loader hands out fresh Networks per asset name and records every
// network it opened.
type Loader struct {
	mu      sync.Mutex
	factory map[string]RunFunc
	opened  []*Network
	loads   map[string]int
}

// NewLoader returns an empty loader; register assets with Register
func NewLoader() *Loader {
	return &Loader{
		factory: make(map[string]RunFunc),
		loads:   make(map[string]int),
	}
}

// Register makes name loadable
func (l *Loader) Register(name string, fn RunFunc) *Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factory[name] = fn
	return l
}

// Remove makes name unavailable, as if its file were deleted
func (l *Loader) Remove(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.factory, name)
}

func (l *Loader) Load(asset inference.Asset) (inference.Network, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fn, ok := l.factory[asset.Name]
	if !ok {
		return nil, errors.NewAssetError("inferencetest.Load", asset.Name, os.ErrNotExist)
	}
	n := NewNetwork(asset.Name, fn)
	l.opened = append(l.opened, n)
	l.loads[asset.Name]++
	return n, nil
}

// Opened returns every network handed out so far
func (l *Loader) Opened() []*Network {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Network(nil), l.opened...)
}

// Loads returns how many times name was loaded
func (l *Loader) Loads(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[name]
}

// Constant returns a RunFunc that always yields outputs
func Constant(outputs ...[]float32) RunFunc {
	return func([]float32, []int64) ([][]float32, error) {
		out := make([][]float32, len(outputs))
		for i, o := range outputs {
			out[i] = append([]float32(nil), o...)
		}
		return out, nil
	}
}
