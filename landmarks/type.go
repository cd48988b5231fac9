// Package landmarks extracts facial keypoints from images and videos using
// the keypoint heads of the SSD face detectors.
package landmarks

import (
	"context"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

const defaultFPS = 25

type ExtractOptions struct {
	SaveJSON bool
	// JSONPath defaults to <stem>_landmarks.json for images and
	// <stem>_video_landmarks.json for videos, inside OutputFolder.
	JSONPath      string
	SaveAnnotated bool
	OutputFolder  string
	// FrameInterval keeps every n-th video frame. Zero means every frame.
	FrameInterval int
}

func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		SaveJSON:      true,
		OutputFolder:  "output",
		FrameInterval: 1,
	}
}

// Extractor is not safe for concurrent use.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, mediaPath string, opts ExtractOptions) (*model.LandmarkResult, error)
	ExtractFrame(ctx context.Context, frame gocv.Mat) ([]model.FaceLandmarks, error)
	Close() error
}

type settings struct {
	opener  inference.Opener
	storage storage.IService
}

type Option func(*settings)

func WithRuntime(opener inference.Opener) Option {
	return func(s *settings) {
		s.opener = opener
	}
}

func WithStorage(svc storage.IService) Option {
	return func(s *settings) {
		s.storage = svc
	}
}
