// Package deepfake classifies images and videos as REAL or FAKE.
package deepfake

import (
	"context"
	"image"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

const (
	DefaultNumFrames = 11
	DefaultThreshold = 0.5
)

type ClassifyOptions struct {
	SaveJSON      bool
	JSONPath      string
	SaveAnnotated bool
	OutputFolder  string
	// NumFrames is how many frames are sampled from a video. Zero means DefaultNumFrames.
	NumFrames int
}

func DefaultClassifyOptions() ClassifyOptions {
	return ClassifyOptions{
		SaveJSON:     true,
		JSONPath:     "deepfake_result.json",
		OutputFolder: "output",
		NumFrames:    DefaultNumFrames,
	}
}

// Classifier is not safe for concurrent use.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, mediaPath string, opts ClassifyOptions) (*model.Classification, error)
	// Score returns the fake probability of a single decoded image.
	Score(ctx context.Context, img image.Image) (float64, error)
	Close() error
}

type backend interface {
	score(img image.Image) (float64, error)
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
