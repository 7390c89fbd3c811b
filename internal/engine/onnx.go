package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/MeKo-Tech/roadsign/internal/tensor"
	"github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// setupONNXEnvironment locates the shared library and initializes the
// runtime once per process.
func setupONNXEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	if err := SetONNXLibraryPath(); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

type onnxRunner struct {
	mu          sync.Mutex
	name        string
	session     *onnxruntime_go.DynamicAdvancedSession
	inputName   string
	outputNames []string
}

func newONNXRunner(data []byte, cfg Config) (Runner, error) {
	if err := setupONNXEnvironment(); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read model IO info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 model input, got %d", len(inputs))
	}
	if len(outputs) == 0 {
		return nil, errors.New("model declares no outputs")
	}

	outputNames := cfg.OutputNames
	if len(outputNames) == 0 {
		outputNames = make([]string, len(outputs))
		for i, o := range outputs {
			outputNames[i] = o.Name
		}
	}

	slog.Debug("ONNX model info",
		"name", cfg.Name,
		"input", inputs[0].Name,
		"input_shape", []int64(inputs[0].Dimensions),
		"outputs", outputNames)

	session, err := createSession(data, inputs[0].Name, outputNames, cfg.NumThreads)
	if err != nil {
		return nil, err
	}

	return &onnxRunner{
		name:        cfg.Name,
		session:     session,
		inputName:   inputs[0].Name,
		outputNames: outputNames,
	}, nil
}

func createSession(data []byte, inputName string, outputNames []string,
	numThreads int,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to destroy session options: %v\n", err)
		}
	}()

	if numThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(numThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSessionWithONNXData(data,
		[]string{inputName}, outputNames, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

func (r *onnxRunner) Run(input tensor.Tensor, specs []OutputSpec) ([][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, ErrClosed
	}
	if len(specs) != len(r.outputNames) {
		return nil, fmt.Errorf("requested %d outputs, model has %d", len(specs), len(r.outputNames))
	}

	inputTensor, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	outputs := make([]onnxruntime_go.Value, len(specs))
	if err := r.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("failed to run %s inference: %w", r.name, err)
	}
	defer func() {
		for _, o := range outputs {
			if o == nil {
				continue
			}
			if err := o.Destroy(); err != nil {
				fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
			}
		}
	}()

	result := make([][]float32, len(outputs))
	for i, o := range outputs {
		t, ok := o.(*onnxruntime_go.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %q is not a float32 tensor", r.outputNames[i])
		}
		result[i] = append([]float32(nil), t.GetData()...)
	}
	if err := CheckOutputs(result, specs); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *onnxRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		if err := r.session.Destroy(); err != nil {
			slog.Warn("Failed to destroy ONNX session", "name", r.name, "error", err)
		}
		r.session = nil
	}
	return nil
}
