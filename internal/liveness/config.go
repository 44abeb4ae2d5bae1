package liveness

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

var (
	validate = validator.New()
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
)

// ModelConfig describes one liveness sub-model and its preprocessing.
// Name selects the model asset. OrgResize picks ResizeFrameThenCrop over
// CropThenResize.
type ModelConfig struct {
	Scale     float32 `json:"scale" validate:"gt=0"`
	ShiftX    float32 `json:"shift_x"`
	ShiftY    float32 `json:"shift_y"`
	Height    int     `json:"height" validate:"gt=0"`
	Width     int     `json:"width" validate:"gt=0"`
	Name      string  `json:"name" validate:"required"`
	OrgResize bool    `json:"org_resize"`
}

// Validate checks the fields that make a config unusable
func (c ModelConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("model config %q: %w", c.Name, err)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("model config: blank name")
	}
	return nil
}

// Aggregation combines per-sub-model real-face probabilities
type Aggregation string

const (
	// Every check must pass: multiply probabilities
	AggregateProduct Aggregation = "product"
	// Arithmetic mean of probabilities
	AggregateMean Aggregation = "mean"
)

// ParseAggregation accepts "product" or "mean"
func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case AggregateProduct, "":
		return AggregateProduct, nil
	case AggregateMean:
		return AggregateMean, nil
	}
	return "", fmt.Errorf("unknown aggregation %q", s)
}

// Manifest is the on-disk list of sub-models
type Manifest struct {
	Models []ModelConfig `json:"models" validate:"min=1,dive"`
}

// ReadManifest decodes and validates a manifest
func ReadManifest(r io.Reader) ([]ModelConfig, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode liveness manifest: %w", err)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("invalid liveness manifest: %w", err)
	}
	return m.Models, nil
}

// LoadManifest reads a manifest file
func LoadManifest(path string) ([]ModelConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open liveness manifest: %w", err)
	}
	defer f.Close()
	return ReadManifest(f)
}
