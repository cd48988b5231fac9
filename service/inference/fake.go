package inference

import (
	"fmt"
	"sync"
)

// Responder produces outputs for a fake runtime.
type Responder func(spec ModelSpec, inputs []Tensor) ([]Tensor, error)

// Fake stands in for a real runtime. It records what it was fed.
type Fake struct {
	Spec    ModelSpec
	Calls   int
	Inputs  [][]Tensor
	Closed  bool
	respond Responder
}

func NewFake(spec ModelSpec, respond Responder) *Fake {
	return &Fake{
		Spec:    spec,
		respond: respond,
	}
}

func (f *Fake) Run(inputs []Tensor) ([]Tensor, error) {
	if f.Closed {
		return nil, fmt.Errorf("fake %s is closed", f.Spec.Name)
	}
	f.Calls++
	f.Inputs = append(f.Inputs, inputs)
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(f.Spec, inputs)
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// FakeOpener hands out fakes and keeps them for inspection.
type FakeOpener struct {
	mu      sync.Mutex
	Respond Responder
	// Fail makes Open fail for the named spec
	Fail   map[string]error
	Opened []*Fake
}

func (o *FakeOpener) Open(spec ModelSpec) (IService, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err, ok := o.Fail[spec.Name]; ok {
		return nil, err
	}
	f := NewFake(spec, o.Respond)
	o.Opened = append(o.Opened, f)
	return f, nil
}

// Live counts fakes that were opened and not closed yet.
func (o *FakeOpener) Live() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for _, f := range o.Opened {
		if !f.Closed {
			n++
		}
	}
	return n
}
