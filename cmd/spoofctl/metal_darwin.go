//go:build darwin

package main

import (
	"fmt"

	"github.com/tsawler/go-metal/checkpoints"
)

// metalReport imports the model with go-metal and lists its layers.
// go-metal covers Conv, MatMul, Add, Relu, LeakyRelu, Sigmoid, Tanh,
// BatchNorm, Dropout, Softmax and Flatten.
func metalReport(path string) error {
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("  go-metal: %d layers, %d weight tensors\n", len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("    %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}
