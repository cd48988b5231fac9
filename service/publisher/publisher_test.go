package publisher

import (
	"errors"
	"testing"

	"github.com/khaledhikmat/facekit/model"
)

type failing struct{}

func (failing) Publish(model.RunRecord) error { return errors.New("offline") }
func (failing) Close() error                  { return nil }

func TestTopic(t *testing.T) {
	if got := Topic("facekit", model.CapabilityDeepfake); got != "facekit/deepfake" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestNewWithoutBrokerIsFake(t *testing.T) {
	svc, err := New("", "", "", "facekit")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.(*Fake); !ok {
		t.Errorf("expected a fake publisher, got %T", svc)
	}
}

func TestFanoutReachesEveryTarget(t *testing.T) {
	a, b := NewFake(), NewFake()
	svc := NewFanout(a, failing{}, b)

	err := svc.Publish(model.RunRecord{ID: "r1"})
	if err == nil || err.Error() != "offline" {
		t.Errorf("expected the failing target's error, got %v", err)
	}
	if len(a.Runs()) != 1 || len(b.Runs()) != 1 {
		t.Errorf("runs were not delivered to every target")
	}
}
