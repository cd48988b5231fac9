package facedetection

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
)

// ultralight wraps the Ultra-Light-Fast-Generic-Face-Detector RFB-320 network.
type ultralight struct {
	runtime      inference.IService
	width        int
	height       int
	threshold    float64
	nmsThreshold float64
}

func newUltralight(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error) {
	rt, err := open(inference.ModelSpec{
		Name:        name,
		Runtime:     params.Runtime,
		Path:        params.ModelPath,
		InputNames:  []string{"input"},
		OutputNames: []string{"scores", "boxes"},
		Threads:     params.Threads,
		LibraryPath: libraryPath,
	})
	if err != nil {
		return nil, err
	}

	return &ultralight{
		runtime:      rt,
		width:        params.InputWidth,
		height:       params.InputHeight,
		threshold:    params.ConfidenceThreshold,
		nmsThreshold: params.NMSThreshold,
	}, nil
}

func (u *ultralight) infer(frame gocv.Mat) ([]model.Detection, error) {
	input, err := inference.FrameTensor(frame, u.width, u.height, 127, 1.0/128, true)
	if err != nil {
		return nil, err
	}
	input.Name = "input"

	outputs, err := u.runtime.Run([]inference.Tensor{input})
	if err != nil {
		return nil, err
	}

	var scores, boxes []float32
	for _, t := range outputs {
		switch t.Dim(len(t.Shape) - 1) {
		case 2:
			scores = t.Data
		case 4:
			boxes = t.Data
		}
	}
	if scores == nil || boxes == nil || len(scores)/2 != len(boxes)/4 {
		return nil, fmt.Errorf("unexpected outputs: want scores [1,N,2] and boxes [1,N,4]")
	}

	w, h := float64(frame.Cols()), float64(frame.Rows())
	var faces []model.Detection
	for i := 0; i < len(scores)/2; i++ {
		score := float64(scores[i*2+1])
		if score < u.threshold {
			continue
		}
		b := boxes[i*4 : i*4+4]
		faces = append(faces, model.Detection{
			BoundingBox: model.BoxFromCorners(float64(b[0])*w, float64(b[1])*h, float64(b[2])*w, float64(b[3])*h),
			Confidence:  score,
		})
	}
	return nms(faces, u.nmsThreshold), nil
}

func (u *ultralight) Close() error {
	return u.runtime.Close()
}
