package publisher

import (
	"sync"

	"github.com/khaledhikmat/facekit/model"
)

// Fake keeps published runs in memory.
type Fake struct {
	mu   sync.Mutex
	runs []model.RunRecord
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Publish(run model.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *Fake) Runs() []model.RunRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RunRecord(nil), f.runs...)
}

func (f *Fake) Close() error {
	return nil
}

type fanout []IService

// NewFanout publishes to every target and reports the first failure.
func NewFanout(targets ...IService) IService {
	return fanout(targets)
}

func (f fanout) Publish(run model.RunRecord) error {
	var first error
	for _, t := range f {
		if err := t.Publish(run); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) Close() error {
	var first error
	for _, t := range f {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
