package facedetection

import (
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
)

const blazeKeypoints = 6

// blazeFace runs the front-camera BlazeFace export on ONNX Runtime.
// Input is NCHW RGB in [-1, 1].
type blazeFace struct {
	runtime inference.IService
	size    int
	decoder ssdDecoder
}

func newBlazeFace(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error) {
	rt, err := open(inference.ModelSpec{
		Name:        name,
		Runtime:     params.Runtime,
		Path:        params.ModelPath,
		InputNames:  []string{"input"},
		OutputNames: []string{"regressors", "classificators"},
		Threads:     params.Threads,
		LibraryPath: libraryPath,
	})
	if err != nil {
		return nil, err
	}

	return &blazeFace{
		runtime: rt,
		size:    params.InputWidth,
		decoder: newSSDDecoder(params.InputWidth, blazeKeypoints, params.ConfidenceThreshold, params.NMSThreshold),
	}, nil
}

func (b *blazeFace) infer(frame gocv.Mat) ([]model.Detection, error) {
	input, err := inference.FrameTensor(frame, b.size, b.size, 127.5, 1/127.5, true)
	if err != nil {
		return nil, err
	}
	input.Name = "input"

	outputs, err := b.runtime.Run([]inference.Tensor{input})
	if err != nil {
		return nil, err
	}
	return b.decoder.decode(outputs, frame.Cols(), frame.Rows())
}

func (b *blazeFace) Close() error {
	return b.runtime.Close()
}
