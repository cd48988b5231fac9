// Package facedetection exposes the face detectors behind one Detector contract.
package facedetection

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

// DetectOptions controls which artifacts a Detect call writes.
// SaveJSON and SaveAnnotated are independent.
type DetectOptions struct {
	SaveJSON      bool
	JSONPath      string
	SaveAnnotated bool
	OutputFolder  string
}

func DefaultDetectOptions() DetectOptions {
	return DetectOptions{
		SaveJSON:      true,
		JSONPath:      "detections.json",
		SaveAnnotated: false,
		OutputFolder:  "output",
	}
}

// Detector locates faces in still images.
//
// A Detector is not safe for concurrent use. Create one per goroutine.
type Detector interface {
	Name() string
	Detect(ctx context.Context, imagePath string, opts DetectOptions) (*model.DetectionResult, error)
	// DetectFrame runs the model on an already decoded BGR frame.
	DetectFrame(ctx context.Context, frame gocv.Mat) ([]model.Detection, error)
	Close() error
}

// backend is the model-specific half of a detector.
type backend interface {
	infer(frame gocv.Mat) ([]model.Detection, error)
	Close() error
}

type settings struct {
	opener  inference.Opener
	storage storage.IService
}

type Option func(*settings)

// WithRuntime replaces the inference runtime used to load weights.
func WithRuntime(opener inference.Opener) Option {
	return func(s *settings) {
		s.opener = opener
	}
}

// WithStorage replaces the artifact writer.
func WithStorage(svc storage.IService) Option {
	return func(s *settings) {
		s.storage = svc
	}
}
