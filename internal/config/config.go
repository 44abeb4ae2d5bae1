// Package config loads engine settings from the environment.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/dudu/facelive/internal/detector"
	"github.com/dudu/facelive/internal/frame"
	"github.com/dudu/facelive/internal/inference"
	"github.com/dudu/facelive/internal/liveness"
	"github.com/dudu/facelive/internal/log"
)

// Config holds engine configuration
type Config struct {
	// Model assets
	ModelDir         string `validate:"required"`
	ORTLibrary       string
	CoreML           bool
	LivenessManifest string

	// Detection
	DetectSize    int     `validate:"gt=0"`
	DetectFormat  string  `validate:"oneof=scrfd detection_out"`
	ConfThreshold float64 `validate:"gte=0,lt=1"`
	NMSThreshold  float64 `validate:"gt=0,lte=1"`

	// Frames and scoring
	YUVLayout     string  `validate:"oneof=i420 nv12 nv21 yuv420p yuv420sp"`
	Aggregation   string  `validate:"oneof=product mean"`
	LiveThreshold float64 `validate:"gte=0,lte=1"`

	// Logging
	LogLevel string `validate:"oneof=trace debug info warn warning error"`
	LogFile  string
}

// Load reads optional .env files, then the environment. Missing .env
// files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from environment variables
func FromEnv() (*Config, error) {
	cfg := &Config{
		ModelDir:         getEnvOrDefault("FACELIVE_MODEL_DIR", "models"),
		ORTLibrary:       getEnvOrDefault("FACELIVE_ORT_LIBRARY", ""),
		CoreML:           getEnvAsBoolOrDefault("FACELIVE_COREML", false),
		LivenessManifest: getEnvOrDefault("FACELIVE_LIVENESS_MANIFEST", ""),
		DetectSize:       getEnvAsIntOrDefault("FACELIVE_DETECT_SIZE", 640),
		DetectFormat:     strings.ToLower(getEnvOrDefault("FACELIVE_DETECT_FORMAT", string(detector.FormatSCRFD))),
		ConfThreshold:    getEnvAsFloatOrDefault("FACELIVE_CONF_THRESHOLD", 0.5),
		NMSThreshold:     getEnvAsFloatOrDefault("FACELIVE_NMS_THRESHOLD", 0.4),
		YUVLayout:        strings.ToLower(getEnvOrDefault("FACELIVE_YUV_LAYOUT", "nv21")),
		Aggregation:      strings.ToLower(getEnvOrDefault("FACELIVE_AGGREGATION", string(liveness.AggregateProduct))),
		LiveThreshold:    getEnvAsFloatOrDefault("FACELIVE_LIVE_THRESHOLD", 0.5),
		LogLevel:         strings.ToLower(getEnvOrDefault("FACELIVE_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("FACELIVE_LOG_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if detector.Format(c.DetectFormat) == detector.FormatSCRFD && c.DetectSize%32 != 0 {
		return fmt.Errorf("FACELIVE_DETECT_SIZE must be a multiple of 32 for scrfd, got %d", c.DetectSize)
	}
	return nil
}

// Detector returns the detection settings
func (c *Config) Detector() detector.Config {
	var d detector.Config
	if detector.Format(c.DetectFormat) == detector.FormatDetectionOut {
		d = detector.DetectionOutConfig()
	} else {
		d = detector.DefaultConfig()
	}
	d.InputSize = c.DetectSize
	d.ConfThreshold = float32(c.ConfThreshold)
	d.NMSThreshold = float32(c.NMSThreshold)
	d.Layout = c.Layout()
	return d
}

// Layout returns the parsed YUV layout. Validate has already accepted it.
func (c *Config) Layout() frame.Layout {
	l, err := frame.ParseLayout(c.YUVLayout)
	if err != nil {
		return frame.NV21
	}
	return l
}

// Loader returns an ONNX Runtime loader for the model directory
func (c *Config) Loader() *inference.ORTLoader {
	return &inference.ORTLoader{
		ModelDir:    c.ModelDir,
		LibraryPath: c.ORTLibrary,
		CoreML:      c.CoreML,
	}
}

// LivenessModels reads the manifest, or returns nil when none is set
func (c *Config) LivenessModels() ([]liveness.ModelConfig, error) {
	if c.LivenessManifest == "" {
		return nil, nil
	}
	return liveness.LoadManifest(c.LivenessManifest)
}

// LogOptions returns logger settings
func (c *Config) LogOptions() log.Options {
	return log.Options{Level: c.LogLevel, File: c.LogFile}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
