package inference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facelive/internal/errors"
	"github.com/dudu/facelive/internal/log"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// Network runs one forward pass over a single float32 input tensor and
// returns the flattened outputs in asset output order.
type Network interface {
	Run(input []float32, shape []int64) ([][]float32, error)
	Close() error
}

// Asset names a model file and, optionally, its tensor names. Empty
// Inputs/Outputs are read from the model itself.
type Asset struct {
	Name    string
	Inputs  []string
	Outputs []string
}

// Loader opens networks. Failures must be *errors.EngineError with
// ErrorAsset so callers can leave their handle unloaded.
type Loader interface {
	Load(asset Asset) (Network, error)
}

// Initialize sets up the ONNX Runtime environment once per process
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Session wraps an ONNX Runtime inference session
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession creates an inference session, trying the CoreML execution
// provider first when coreML is set.
func NewSession(modelPath string, inputNames, outputNames []string, coreML bool) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if coreML {
		// Flag 0 = default settings, Neural Engine + GPU
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			log.Warn(log.Fields{"model": modelPath, "error": err.Error()}, "CoreML unavailable, using CPU")
		} else {
			log.Debug(log.Fields{"model": modelPath}, "CoreML execution provider enabled")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference; outputs are allocated by the runtime and copied
// out before they are destroyed.
func (s *Session) Run(input []float32, shape []int64) ([][]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, len(s.outputNames))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	result := make([][]float32, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s is not a float32 tensor", s.outputNames[i])
		}
		data := t.GetData()
		result[i] = make([]float32, len(data))
		copy(result[i], data)
	}
	return result, nil
}

// Close releases session resources
func (s *Session) Close() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		return err
	}
	return nil
}

// ORTLoader opens .onnx assets from a model directory
type ORTLoader struct {
	ModelDir    string
	LibraryPath string
	CoreML      bool
}

// Path resolves an asset name to a model file path. Names such as
// "2.7_80x80_MiniFASNetV2" carry dots, so only .onnx and .ort count as
// extensions.
func (l *ORTLoader) Path(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".onnx", ".ort":
	default:
		name += ".onnx"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.ModelDir, name)
}

// Load opens the asset, discovering tensor names when the asset leaves
// them empty.
func (l *ORTLoader) Load(asset Asset) (Network, error) {
	const op = "inference.Load"

	if strings.TrimSpace(asset.Name) == "" {
		return nil, errors.NewAssetError(op, asset.Name, fmt.Errorf("empty asset name"))
	}

	path := l.Path(asset.Name)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewAssetError(op, asset.Name, err)
	}

	if err := Initialize(l.LibraryPath); err != nil {
		return nil, errors.NewAssetError(op, asset.Name, err)
	}

	inputs, outputs := asset.Inputs, asset.Outputs
	if len(inputs) == 0 || len(outputs) == 0 {
		inInfo, outInfo, err := ort.GetInputOutputInfo(path)
		if err != nil {
			return nil, errors.NewAssetError(op, asset.Name, fmt.Errorf("failed to read model info: %w", err))
		}
		if len(inputs) == 0 {
			for _, info := range inInfo {
				inputs = append(inputs, info.Name)
			}
		}
		if len(outputs) == 0 {
			for _, info := range outInfo {
				outputs = append(outputs, info.Name)
			}
		}
	}
	if len(inputs) != 1 {
		return nil, errors.NewAssetError(op, asset.Name, fmt.Errorf("expected 1 model input, found %d", len(inputs)))
	}

	session, err := NewSession(path, inputs, outputs, l.CoreML)
	if err != nil {
		return nil, errors.NewAssetError(op, asset.Name, err)
	}

	log.Debug(log.Fields{"model": path, "inputs": inputs, "outputs": outputs}, "model session created")
	return session, nil
}
