// Package reenactment animates a still face with the motion of a driving video.
package reenactment

import (
	"context"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

type ReenactOptions struct {
	OutputFolder string
	// SaveComparison also writes source | driving | result side by side.
	SaveComparison bool
	// MaxFrames caps the frames read from the driving video. Zero reads them all.
	MaxFrames int
}

func DefaultReenactOptions() ReenactOptions {
	return ReenactOptions{
		OutputFolder:   "output",
		SaveComparison: true,
	}
}

// Reenactor is not safe for concurrent use.
type Reenactor interface {
	Name() string
	Reenact(ctx context.Context, sourceImagePath, drivingVideoPath string, opts ReenactOptions) (*model.Reenactment, error)
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
