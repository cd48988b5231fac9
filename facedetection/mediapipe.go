package facedetection

import (
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
)

// mediaPipe runs the short-range MediaPipe face detector on TFLite.
// The interpreter wants NHWC input.
type mediaPipe struct {
	runtime inference.IService
	size    int
	decoder ssdDecoder
}

func newMediaPipe(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error) {
	rt, err := open(inference.ModelSpec{
		Name:        name,
		Runtime:     params.Runtime,
		Path:        params.ModelPath,
		Threads:     params.Threads,
		LibraryPath: libraryPath,
	})
	if err != nil {
		return nil, err
	}

	return &mediaPipe{
		runtime: rt,
		size:    params.InputWidth,
		decoder: newSSDDecoder(params.InputWidth, blazeKeypoints, params.ConfidenceThreshold, params.NMSThreshold),
	}, nil
}

func (m *mediaPipe) infer(frame gocv.Mat) ([]model.Detection, error) {
	input, err := inference.FrameTensor(frame, m.size, m.size, 127.5, 1/127.5, false)
	if err != nil {
		return nil, err
	}

	outputs, err := m.runtime.Run([]inference.Tensor{input})
	if err != nil {
		return nil, err
	}
	return m.decoder.decode(outputs, frame.Cols(), frame.Rows())
}

func (m *mediaPipe) Close() error {
	return m.runtime.Close()
}
