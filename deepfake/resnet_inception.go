package deepfake

import (
	"image"

	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
)

// resnetInception expects 256x256 RGB in [0, 1].
type resnetInception struct {
	runtime inference.IService
	size    int
}

func newResNetInception(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error) {
	rt, err := open(inference.ModelSpec{
		Name:        name,
		Runtime:     params.Runtime,
		Path:        params.ModelPath,
		InputNames:  []string{"input"},
		OutputNames: []string{"output"},
		Threads:     params.Threads,
		LibraryPath: libraryPath,
	})
	if err != nil {
		return nil, err
	}
	return &resnetInception{runtime: rt, size: params.InputWidth}, nil
}

func (r *resnetInception) score(img image.Image) (float64, error) {
	outputs, err := r.runtime.Run([]inference.Tensor{imageTensor(img, r.size, unitMean, unitStd)})
	if err != nil {
		return 0, err
	}
	return fakeProbability(outputs)
}

func (r *resnetInception) Close() error {
	return r.runtime.Close()
}
