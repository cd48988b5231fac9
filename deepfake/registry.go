package deepfake

import (
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

type Model string

const (
	ResNetInception Model = config.ResNetInceptionName
	EfficientNet    Model = config.EfficientNetName
)

type constructor func(name string, params config.ModelParameters, libraryPath string, open inference.Opener) (backend, error)

var models = []Model{ResNetInception, EfficientNet}

var constructors = map[Model]constructor{
	ResNetInception: newResNetInception,
	EfficientNet:    newEfficientNet,
}

func ListAvailableModels() []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = string(m)
	}
	return names
}

// Create builds a new classifier for name.
func Create(cfgSvc config.IService, name string, opts ...Option) (Classifier, error) {
	if err := model.CheckModelName(name); err != nil {
		return nil, err
	}

	ctor, ok := constructors[Model(name)]
	if !ok {
		return nil, &model.UnsupportedModelError{
			Capability: model.CapabilityDeepfake,
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

	params := cfgSvc.GetModelParameters(name)
	b, err := ctor(name, params, cfgSvc.GetOnnxLibraryPath(), s.opener)
	if err != nil {
		return nil, &model.InferenceError{Backend: name, Err: err}
	}

	threshold := params.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &classifier{
		name:      name,
		backend:   b,
		storage:   s.storage,
		threshold: threshold,
	}, nil
}
