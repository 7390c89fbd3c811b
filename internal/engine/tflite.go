//go:build tflite

package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/roadsign/internal/tensor"
	"github.com/mattn/go-tflite"
)

// TFLiteAvailable reports whether the TensorFlow Lite backend is compiled in.
const TFLiteAvailable = true

type tfliteRunner struct {
	mu     sync.Mutex
	name   string
	data   []byte // the C model references this buffer
	model  *tflite.Model
	interp *tflite.Interpreter
}

func newTFLiteRunner(data []byte, cfg Config) (Runner, error) {
	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New("cannot load TFLite model")
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if cfg.NumThreads > 0 {
		options.SetNumThread(cfg.NumThreads)
	}

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		model.Delete()
		return nil, errors.New("cannot create TFLite interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		model.Delete()
		return nil, fmt.Errorf("failed to allocate TFLite tensors: status %d", status)
	}

	return &tfliteRunner{name: cfg.Name, data: data, model: model, interp: interp}, nil
}

func (r *tfliteRunner) Run(input tensor.Tensor, specs []OutputSpec) ([][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interp == nil {
		return nil, ErrClosed
	}

	in := r.interp.GetInputTensor(0)
	if in == nil {
		return nil, errors.New("model has no input tensor")
	}
	if in.Type() != tflite.Float32 {
		return nil, fmt.Errorf("unsupported input tensor type %v", in.Type())
	}
	buf := input.NativeBytes()
	if in.ByteSize() != uint(len(buf)) {
		return nil, fmt.Errorf("input tensor expects %d bytes, got %d", in.ByteSize(), len(buf))
	}
	if status := in.CopyFromBuffer(buf); status != tflite.OK {
		return nil, fmt.Errorf("failed to copy input: status %d", status)
	}

	if status := r.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("failed to run %s inference: status %d", r.name, status)
	}

	if n := r.interp.GetOutputTensorCount(); n < len(specs) {
		return nil, fmt.Errorf("requested %d outputs, model has %d", len(specs), n)
	}
	result := make([][]float32, len(specs))
	for i := range specs {
		out := r.interp.GetOutputTensor(i)
		if out.Type() != tflite.Float32 {
			return nil, fmt.Errorf("output %d has unsupported type %v", i, out.Type())
		}
		result[i] = append([]float32(nil), out.Float32s()...)
	}
	if err := CheckOutputs(result, specs); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *tfliteRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.interp != nil {
		r.interp.Delete()
		r.interp = nil
	}
	if r.model != nil {
		r.model.Delete()
		r.model = nil
	}
	r.data = nil
	return nil
}
