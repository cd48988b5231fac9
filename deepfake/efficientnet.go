package deepfake

import (
	"image"

	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
)

// efficientNet expects 224x224 RGB normalized with ImageNet statistics.
type efficientNet struct {
	runtime inference.IService
	size    int
}

func newEfficientNet(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error) {
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
	return &efficientNet{runtime: rt, size: params.InputWidth}, nil
}

func (e *efficientNet) score(img image.Image) (float64, error) {
	outputs, err := e.runtime.Run([]inference.Tensor{imageTensor(img, e.size, imagenetMean, imagenetStd)})
	if err != nil {
		return 0, err
	}
	return fakeProbability(outputs)
}

func (e *efficientNet) Close() error {
	return e.runtime.Close()
}
