package publisher

import "github.com/khaledhikmat/facekit/model"

// IService announces completed runs to whoever listens.
type IService interface {
	Publish(run model.RunRecord) error
	Close() error
}

// New returns an MQTT publisher when a broker is configured, or a fake otherwise.
func New(broker, username, password, topicPrefix string) (IService, error) {
	if broker == "" {
		return NewFake(), nil
	}
	return NewMQTT(broker, username, password, topicPrefix)
}
