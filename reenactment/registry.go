package reenactment

import (
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

type Model string

const (
	TPS Model = config.TPSName
)

var models = []Model{TPS}

func ListAvailableModels() []string {
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = string(m)
	}
	return names
}

func Create(cfgSvc config.IService, name string, opts ...Option) (Reenactor, error) {
	if err := model.CheckModelName(name); err != nil {
		return nil, err
	}
	if Model(name) != TPS {
		return nil, &model.UnsupportedModelError{
			Capability: model.CapabilityReenactment,
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

	r, err := newTPS(name, cfgSvc.GetModelParameters(name), cfgSvc.GetOnnxLibraryPath(), s.opener, s.storage)
	if err != nil {
		return nil, &model.InferenceError{Backend: name, Err: err}
	}
	return r, nil
}
