package facedetection

import (
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

type Model string

const (
	BlazeFace  Model = config.BlazeFaceName
	MediaPipe  Model = config.MediaPipeName
	Ultralight Model = config.UltralightName
)

type constructor func(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error)

// models keeps the listing order stable.
var models = []Model{BlazeFace, MediaPipe, Ultralight}

var constructors = map[Model]constructor{
	BlazeFace:  newBlazeFace,
	MediaPipe:  newMediaPipe,
	Ultralight: newUltralight,
}

// ListAvailableModels returns a fresh copy of the detector keys.
func ListAvailableModels() []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = string(m)
	}
	return names
}

// Create builds a new detector for name. Weights are loaded eagerly.
func Create(cfgSvc config.IService, name string, opts ...Option) (Detector, error) {
	if err := model.CheckModelName(name); err != nil {
		return nil, err
	}

	ctor, ok := constructors[Model(name)]
	if !ok {
		return nil, &model.UnsupportedModelError{
			Capability: model.CapabilityDetection,
			Name:       name,
			Available:  ListAvailableModels(),
		}
	}

	s := settings{
		opener:  inference.Open,
		storage: storage.NewFiles(),
	}
	for _, opt := range opts {
		opt(&s)
	}

	b, err := ctor(name, cfgSvc.GetModelParameters(name), cfgSvc.GetOnnxLibraryPath(), s.opener)
	if err != nil {
		return nil, &model.InferenceError{Backend: name, Err: err}
	}

	return &detector{
		name:    name,
		backend: b,
		storage: s.storage,
	}, nil
}
