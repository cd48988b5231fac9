package inference

import (
	"fmt"

	"github.com/mattn/go-tflite"
)

type tfliteService struct {
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	spec    ModelSpec
}

func NewTFLite(spec ModelSpec) (IService, error) {
	m := tflite.NewModelFromFile(spec.Path)
	if m == nil {
		return nil, fmt.Errorf("failed to load tflite model %s", spec.Path)
	}

	options := tflite.NewInterpreterOptions()
	if spec.Threads > 0 {
		options.SetNumThread(spec.Threads)
	}

	interp := tflite.NewInterpreter(m, options)
	if interp == nil {
		options.Delete()
		m.Delete()
		return nil, fmt.Errorf("failed to create interpreter for %s", spec.Path)
	}

	svc := &tfliteService{
		model:   m,
		options: options,
		interp:  interp,
		spec:    spec,
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		svc.Close()
		return nil, fmt.Errorf("failed to allocate tensors for %s", spec.Path)
	}
	return svc, nil
}

func (svc *tfliteService) Run(inputs []Tensor) ([]Tensor, error) {
	if svc.interp == nil {
		return nil, fmt.Errorf("interpreter %s is closed", svc.spec.Name)
	}
	if len(inputs) != svc.interp.GetInputTensorCount() {
		return nil, fmt.Errorf("expected %d inputs, got %d", svc.interp.GetInputTensorCount(), len(inputs))
	}

	for i, t := range inputs {
		input := svc.interp.GetInputTensor(i)
		if input.ByteSize() != uint(4*len(t.Data)) {
			return nil, fmt.Errorf("input %d expects %d bytes, got %d", i, input.ByteSize(), 4*len(t.Data))
		}
		if status := input.CopyFromBuffer(t.Data); status != tflite.OK {
			return nil, fmt.Errorf("failed to copy input %d", i)
		}
	}

	if status := svc.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke failed")
	}

	count := svc.interp.GetOutputTensorCount()
	results := make([]Tensor, count)
	for i := 0; i < count; i++ {
		output := svc.interp.GetOutputTensor(i)
		shape := make([]int64, output.NumDims())
		for d := range shape {
			shape[d] = int64(output.Dim(d))
		}
		results[i] = Tensor{
			Name:  output.Name(),
			Shape: shape,
			Data:  append([]float32(nil), output.Float32s()...),
		}
	}
	return results, nil
}

func (svc *tfliteService) Close() error {
	if svc.interp != nil {
		svc.interp.Delete()
		svc.interp = nil
	}
	if svc.options != nil {
		svc.options.Delete()
		svc.options = nil
	}
	if svc.model != nil {
		svc.model.Delete()
		svc.model = nil
	}
	return nil
}
