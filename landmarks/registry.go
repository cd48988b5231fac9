package landmarks

import (
	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/storage"
)

type Model string

// Only detectors with a keypoint head can extract landmarks.
const (
	BlazeFace Model = config.BlazeFaceName
	MediaPipe Model = config.MediaPipeName
)

var models = []Model{BlazeFace, MediaPipe}

func ListAvailableModels() []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = string(m)
	}
	return names
}

// Create builds an extractor on top of a fresh detector for name.
func Create(cfgSvc config.IService, name string, opts ...Option) (Extractor, error) {
	if err := model.CheckModelName(name); err != nil {
		return nil, err
	}

	known := false
	for _, m := range models {
		if string(m) == name {
			known = true
			break
		}
	}
	if !known {
		return nil, &model.UnsupportedModelError{
			Capability: model.CapabilityLandmarks,
			Name:       name,
			Available:  ListAvailableModels(),
		}
	}

	s := settings{storage: storage.NewFiles()}
	for _, opt := range opts {
		opt(&s)
	}

	detectorOpts := []facedetection.Option{facedetection.WithStorage(s.storage)}
	if s.opener != nil {
		detectorOpts = append(detectorOpts, facedetection.WithRuntime(s.opener))
	}
	d, err := facedetection.Create(cfgSvc, name, detectorOpts...)
	if err != nil {
		return nil, err
	}

	return &extractor{
		name:     name,
		detector: d,
		storage:  s.storage,
	}, nil
}
