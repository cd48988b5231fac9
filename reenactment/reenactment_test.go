package reenactment

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

// motion returns 50 keypoints for the detector and a flat gray frame for the generator.
func motion(spec inference.ModelSpec, inputs []inference.Tensor) ([]inference.Tensor, error) {
	if strings.HasSuffix(spec.Name, "kp_detector") {
		kp := make([]float32, 100)
		for i := range kp {
			kp[i] = inputs[0].Data[0]
		}
		return []inference.Tensor{{Name: "kp", Shape: []int64{1, 50, 2}, Data: kp}}, nil
	}

	out := make([]float32, 3*256*256)
	for i := range out {
		out[i] = 0.5
	}
	return []inference.Tensor{{Name: "out", Shape: []int64{1, 3, 256, 256}, Data: out}}, nil
}

func writeImage(t *testing.T, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 80, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 80; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 100, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeVideo(t *testing.T, path string, frames int) {
	t.Helper()

	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 64, true)
	if err != nil || !w.IsOpened() {
		t.Skipf("no MJPG encoder available: %v", err)
	}
	defer w.Close()

	for i := 0; i < frames; i++ {
		mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(20*i), 60, 90, 0), 64, 64, gocv.MatTypeCV8UC3)
		w.Write(mat)
		mat.Close()
	}
}

func requireMP4(t *testing.T) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "codec.mp4")
	w, err := gocv.VideoWriterFile(path, "mp4v", 10, 32, 32, true)
	if err != nil || !w.IsOpened() {
		t.Skipf("no mp4v encoder available: %v", err)
	}
	w.Close()
}

func TestRegistry(t *testing.T) {
	if got := ListAvailableModels(); !reflect.DeepEqual(got, []string{"tps"}) {
		t.Fatalf("ListAvailableModels() = %v", got)
	}

	opener := &inference.FakeOpener{Respond: motion}
	r, err := Create(config.NewHardCoded(), "tps", WithRuntime(opener.Open))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if opener.Live() != 2 {
		t.Errorf("expected keypoint detector and generator open, got %d", opener.Live())
	}
	r.Close()
	if opener.Live() != 0 {
		t.Errorf("runtimes still open after Close")
	}

	_, err = Create(config.NewHardCoded(), "fomm", WithRuntime(opener.Open))
	var unsupported *model.UnsupportedModelError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedModelError, got %v", err)
	}
	if unsupported.Capability != model.CapabilityReenactment {
		t.Errorf("capability %s", unsupported.Capability)
	}

	_, err = Create(config.NewHardCoded(), "", WithRuntime(opener.Open))
	var invalid *model.InvalidArgumentError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidArgumentError, got %v", err)
	}
}

func TestCreateReleasesOnFailure(t *testing.T) {
	opener := &inference.FakeOpener{Fail: map[string]error{"tps/generator": errors.New("corrupt weights")}}

	_, err := Create(config.NewHardCoded(), "tps", WithRuntime(opener.Open))
	var inferr *model.InferenceError
	if !errors.As(err, &inferr) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if len(opener.Opened) != 1 || opener.Live() != 0 {
		t.Errorf("keypoint detector was not released: opened=%d live=%d", len(opener.Opened), opener.Live())
	}
}

func TestReenactValidatesInputs(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	writeImage(t, src)

	opener := &inference.FakeOpener{Respond: motion}
	r, err := Create(config.NewHardCoded(), "tps", WithRuntime(opener.Open))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	missing := filepath.Join(dir, "missing.mp4")
	_, err = r.Reenact(context.Background(), src, missing, DefaultReenactOptions())
	var notFound *model.InputNotFoundError
	if !errors.As(err, &notFound) || notFound.Path != missing {
		t.Errorf("expected InputNotFoundError for %s, got %v", missing, err)
	}

	_, err = r.Reenact(context.Background(), src, src, DefaultReenactOptions())
	var invalid *model.InvalidArgumentError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidArgumentError for an image as driving video, got %v", err)
	}
}

func TestReenactWritesVideos(t *testing.T) {
	requireMP4(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	drv := filepath.Join(dir, "talk.avi")
	writeImage(t, src)
	writeVideo(t, drv, 6)

	opener := &inference.FakeOpener{Respond: motion}
	r, err := Create(config.NewHardCoded(), "tps", WithRuntime(opener.Open))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	out := filepath.Join(dir, "out")
	result, err := r.Reenact(context.Background(), src, drv, ReenactOptions{OutputFolder: out, SaveComparison: true, MaxFrames: 4})
	if err != nil {
		t.Fatalf("Reenact failed: %v", err)
	}

	if result.Frames != 4 {
		t.Errorf("expected 4 frames, got %d", result.Frames)
	}
	if result.OutputPath != filepath.Join(out, "face_by_talk.mp4") {
		t.Errorf("output path %s", result.OutputPath)
	}
	if result.ComparisonPath != filepath.Join(out, "comparison_face_by_talk.mp4") {
		t.Errorf("comparison path %s", result.ComparisonPath)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly the two videos, found %d entries", len(entries))
	}
}

// refusingStore fails to store any file whose name starts with prefix.
type refusingStore struct {
	storage.IService
	prefix string
}

func (s refusingStore) StoreFile(tempPath, finalPath string) (string, error) {
	if strings.HasPrefix(filepath.Base(finalPath), s.prefix) {
		os.Remove(tempPath)
		return "", &model.PersistenceError{Path: finalPath, Err: errors.New("disk full")}
	}
	return s.IService.StoreFile(tempPath, finalPath)
}

func TestReenactKeepsNoVideoWhenComparisonFails(t *testing.T) {
	requireMP4(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	drv := filepath.Join(dir, "talk.avi")
	writeImage(t, src)
	writeVideo(t, drv, 3)

	opener := &inference.FakeOpener{Respond: motion}
	store := refusingStore{IService: storage.NewFiles(), prefix: "comparison_"}
	r, err := Create(config.NewHardCoded(), "tps", WithRuntime(opener.Open), WithStorage(store))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	out := filepath.Join(dir, "out")
	result, err := r.Reenact(context.Background(), src, drv, ReenactOptions{OutputFolder: out, SaveComparison: true})
	var persistence *model.PersistenceError
	if !errors.As(err, &persistence) {
		t.Fatalf("got %v, want PersistenceError", err)
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("unexpected leftover %s", e.Name())
	}
}

func TestRelativeMotion(t *testing.T) {
	src := inference.Tensor{Shape: []int64{1, 1, 2}, Data: []float32{0.1, 0.2}}
	drv := inference.Tensor{Shape: []int64{1, 1, 2}, Data: []float32{0.5, 0.5}}

	got := relativeMotion(src, drv, []float32{0.4, 0.6})
	want := []float32{0.2, 0.1}
	for i := range want {
		if d := got.Data[i] - want[i]; d > 1e-6 || d < -1e-6 {
			t.Errorf("keypoint %d = %v, want %v", i, got.Data[i], want[i])
		}
	}
}
