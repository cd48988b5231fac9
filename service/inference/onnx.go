package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	envRefs int
	envMu   sync.Mutex
)

// acquireEnv initializes the ONNX Runtime environment on first use.
func acquireEnv(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}
	envRefs++
	return nil
}

// releaseEnv destroys the environment once the last session is gone.
func releaseEnv() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs > 0 {
		return nil
	}
	return ort.DestroyEnvironment()
}

type onnxService struct {
	session *ort.DynamicAdvancedSession
	spec    ModelSpec
	closed  bool
}

func NewOnnx(spec ModelSpec) (IService, error) {
	if err := acquireEnv(spec.LibraryPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		_ = releaseEnv()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if spec.Threads > 0 {
		if err := options.SetIntraOpNumThreads(spec.Threads); err != nil {
			_ = releaseEnv()
			return nil, fmt.Errorf("failed to set threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(spec.Path, spec.InputNames, spec.OutputNames, options)
	if err != nil {
		_ = releaseEnv()
		return nil, fmt.Errorf("failed to create session for %s: %w", spec.Path, err)
	}

	return &onnxService{
		session: session,
		spec:    spec,
	}, nil
}

func (svc *onnxService) Run(inputs []Tensor) ([]Tensor, error) {
	if svc.closed {
		return nil, fmt.Errorf("session %s is closed", svc.spec.Name)
	}

	in := make([]ort.Value, 0, len(inputs))
	defer func() {
		for _, v := range in {
			v.Destroy()
		}
	}()
	for _, t := range inputs {
		if elements(t.Shape) != len(t.Data) {
			return nil, fmt.Errorf("input %s has %d values for shape %v", t.Name, len(t.Data), t.Shape)
		}
		tensor, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to create input tensor %s: %w", t.Name, err)
		}
		in = append(in, tensor)
	}

	// nil outputs are allocated by the runtime with their real shapes
	out := make([]ort.Value, len(svc.spec.OutputNames))
	defer func() {
		for _, v := range out {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := svc.session.Run(in, out); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	results := make([]Tensor, len(out))
	for i, v := range out {
		tensor, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s is not a float32 tensor", svc.spec.OutputNames[i])
		}
		data := tensor.GetData()
		results[i] = Tensor{
			Name:  svc.spec.OutputNames[i],
			Shape: append([]int64(nil), tensor.GetShape()...),
			Data:  append([]float32(nil), data...),
		}
	}
	return results, nil
}

func (svc *onnxService) Close() error {
	if svc.closed {
		return nil
	}
	svc.closed = true

	err := svc.session.Destroy()
	if relErr := releaseEnv(); err == nil {
		err = relErr
	}
	return err
}
