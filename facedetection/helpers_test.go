package facedetection

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
)

const (
	fixtureWidth  = 200
	fixtureHeight = 160
)

// writeFixture writes a flat gray PNG and returns its path.
func writeFixture(t *testing.T, dir, name string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, fixtureWidth, fixtureHeight))
	for y := 0; y < fixtureHeight; y++ {
		for x := 0; x < fixtureWidth; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 110, B: 100, A: 255})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return path
}

// centerAnchor is the stride-8 anchor sitting at (0.53125, 0.53125).
func centerAnchor() int {
	for i, a := range ssdAnchors(128, []int{8, 16, 16, 16}) {
		if a.cx == 8.5/16 && a.cy == 8.5/16 {
			return i
		}
	}
	return -1
}

// oneFace answers like a real model that sees a single face in the middle.
func oneFace(spec inference.ModelSpec, _ []inference.Tensor) ([]inference.Tensor, error) {
	switch spec.Name {
	case config.BlazeFaceName, config.MediaPipeName:
		n := 896
		regressors := make([]float32, n*16)
		scores := make([]float32, n)
		for i := range scores {
			scores[i] = -1000
		}
		idx := centerAnchor()
		scores[idx] = 10
		regressors[idx*16+2] = 32
		regressors[idx*16+3] = 32
		return []inference.Tensor{
			{Name: "regressors", Shape: []int64{1, int64(n), 16}, Data: regressors},
			{Name: "classificators", Shape: []int64{1, int64(n), 1}, Data: scores},
		}, nil
	case config.UltralightName:
		n := 10
		scores := make([]float32, n*2)
		boxes := make([]float32, n*4)
		for i := 0; i < n; i++ {
			scores[i*2] = 1
		}
		scores[6], scores[7] = 0.05, 0.95
		copy(boxes[12:16], []float32{0.3, 0.3, 0.6, 0.7})
		return []inference.Tensor{
			{Name: "scores", Shape: []int64{1, int64(n), 2}, Data: scores},
			{Name: "boxes", Shape: []int64{1, int64(n), 4}, Data: boxes},
		}, nil
	}
	return nil, fmt.Errorf("no canned output for %s", spec.Name)
}

func newTestDetector(t *testing.T, name string, respond inference.Responder) (Detector, *inference.FakeOpener) {
	t.Helper()

	opener := &inference.FakeOpener{Respond: respond}
	d, err := Create(config.NewHardCoded(), name, WithRuntime(opener.Open))
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", name, err)
	}
	t.Cleanup(func() { d.Close() })
	return d, opener
}
