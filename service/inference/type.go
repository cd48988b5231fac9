package inference

import (
	"fmt"

	"github.com/khaledhikmat/facekit/service/config"
)

// Tensor is a dense float32 tensor exchanged with a runtime.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Dim returns the size of dimension i, or 0 when it does not exist.
func (t Tensor) Dim(i int) int {
	if i < 0 || i >= len(t.Shape) {
		return 0
	}
	return int(t.Shape[i])
}

// ModelSpec says which file to load and how to feed it.
type ModelSpec struct {
	Name        string
	Runtime     string
	Path        string
	InputNames  []string
	OutputNames []string
	Threads     int
	LibraryPath string
}

// IService runs one loaded model. Not safe for concurrent use.
type IService interface {
	Run(inputs []Tensor) ([]Tensor, error)
	Close() error
}

// Opener loads a model. Adapters receive one so tests can swap the runtime.
type Opener func(spec ModelSpec) (IService, error)

// Open dispatches to the runtime named by spec.Runtime.
func Open(spec ModelSpec) (IService, error) {
	switch spec.Runtime {
	case config.RuntimeONNX:
		return NewOnnx(spec)
	case config.RuntimeTFLite:
		return NewTFLite(spec)
	case config.RuntimeDNN:
		return NewDNN(spec)
	}
	return nil, fmt.Errorf("unsupported runtime %q for %s", spec.Runtime, spec.Name)
}

func elements(shape []int64) int {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return int(n)
}
