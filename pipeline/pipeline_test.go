package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/khaledhikmat/facekit/deepfake"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/reenactment"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/data"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/publisher"
)

type testConfig struct {
	config.IService
	folder string
}

func (c testConfig) GetDataFolder() string {
	return c.folder
}

func (c testConfig) GetJournalFile() string {
	return ""
}

// canned answers for ultralight and both deepfake models.
// Ultralight sees one face unless faceless is set.
func canned(faceless bool) inference.Responder {
	return func(spec inference.ModelSpec, _ []inference.Tensor) ([]inference.Tensor, error) {
		switch spec.Name {
		case config.UltralightName:
			n := 10
			scores := make([]float32, n*2)
			boxes := make([]float32, n*4)
			for i := 0; i < n; i++ {
				scores[i*2] = 1
			}
			if !faceless {
				scores[6], scores[7] = 0.05, 0.95
				copy(boxes[12:16], []float32{0.3, 0.3, 0.6, 0.7})
			}
			return []inference.Tensor{
				{Name: "scores", Shape: []int64{1, int64(n), 2}, Data: scores},
				{Name: "boxes", Shape: []int64{1, int64(n), 4}, Data: boxes},
			}, nil
		case config.ResNetInceptionName:
			return []inference.Tensor{{Name: "output", Shape: []int64{1, 1}, Data: []float32{2}}}, nil
		case config.EfficientNetName:
			return []inference.Tensor{{Name: "output", Shape: []int64{1, 1}, Data: []float32{-2}}}, nil
		}
		return nil, errors.New("no canned output for " + spec.Name)
	}
}

func newServices(t *testing.T, faceless bool) (ServicesFactory, *publisher.Fake, *inference.FakeOpener) {
	t.Helper()

	cfg := testConfig{IService: config.NewHardCoded(), folder: t.TempDir()}
	dataSvc, err := data.New(cfg)
	if err != nil {
		t.Fatalf("failed to open data store: %v", err)
	}
	t.Cleanup(func() { dataSvc.Close() })

	pub := publisher.NewFake()
	opener := &inference.FakeOpener{Respond: canned(faceless)}
	return ServicesFactory{
		CfgSvc:       cfg,
		DataSvc:      dataSvc,
		PublisherSvc: pub,
		Runtime:      opener.Open,
	}, pub, opener
}

func writeImage(t *testing.T, path string) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 200, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
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
	return path
}

func TestDetectFolder(t *testing.T) {
	for _, workers := range []int{0, 3} {
		svcs, pub, opener := newServices(t, false)
		dir := t.TempDir()
		for _, name := range []string{"c.png", "a.png", "b.png"} {
			writeImage(t, filepath.Join(dir, name))
		}
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0o644); err != nil {
			t.Fatal(err)
		}

		out := t.TempDir()
		opts := FolderOptions{
			Workers:      workers,
			SaveJSON:     true,
			JSONPath:     filepath.Join(out, "detections.json"),
			OutputFolder: out,
			CSVPath:      filepath.Join(out, "detections.csv"),
		}
		result, err := DetectFolder(context.Background(), svcs, config.UltralightName, dir, opts)
		if err != nil {
			t.Fatalf("workers=%d: DetectFolder failed: %v", workers, err)
		}

		var names []string
		for _, d := range result.Detections {
			names = append(names, d.ImageName)
			if d.Confidence < 0 || d.Confidence > 1 {
				t.Errorf("confidence %v out of range", d.Confidence)
			}
			if d.X2 <= d.X1 || d.Y2 <= d.Y1 {
				t.Errorf("degenerate box %+v", d)
			}
		}
		if want := []string{"a.png", "b.png", "c.png"}; !reflect.DeepEqual(names, want) {
			t.Errorf("workers=%d: images = %v, want %v", workers, names, want)
		}
		if len(result.Failures) != 1 || result.Failures[0].ImageName != "broken.jpg" {
			t.Errorf("workers=%d: failures = %+v", workers, result.Failures)
		}
		if got := len(pub.Runs()); got != 3 {
			t.Errorf("workers=%d: published %d runs, want 3", workers, got)
		}
		if opener.Live() != 0 {
			t.Errorf("workers=%d: %d runtimes left open", workers, opener.Live())
		}

		raw, err := os.ReadFile(opts.JSONPath)
		if err != nil {
			t.Fatalf("missing consolidated JSON: %v", err)
		}
		var saved []model.FolderDetection
		if err := json.Unmarshal(raw, &saved); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(saved, result.Detections) {
			t.Errorf("saved detections differ: %+v vs %+v", saved, result.Detections)
		}

		rows := readCSV(t, opts.CSVPath)
		if len(rows) != 4 || !reflect.DeepEqual(rows[0], folderCSVHeader) {
			t.Errorf("unexpected CSV: %v", rows)
		}
	}
}

func TestDetectFolderErrors(t *testing.T) {
	svcs, _, _ := newServices(t, false)

	_, err := DetectFolder(context.Background(), svcs, config.UltralightName, filepath.Join(t.TempDir(), "missing"), DefaultFolderOptions())
	var notFound *model.InputNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("missing folder: got %v", err)
	}

	withImage := t.TempDir()
	writeImage(t, filepath.Join(withImage, "a.png"))

	_, err = DetectFolder(context.Background(), svcs, "nope", withImage, FolderOptions{})
	var unsupported *model.UnsupportedModelError
	if !errors.As(err, &unsupported) {
		t.Errorf("unknown model: got %v", err)
	}

	_, err = DetectFolder(context.Background(), svcs, config.UltralightName, withImage, FolderOptions{SaveJSON: true})
	var invalid *model.InvalidArgumentError
	if !errors.As(err, &invalid) || invalid.Argument != "json_path" {
		t.Errorf("empty json path: got %v", err)
	}
}

func TestDetectFolderWithoutImages(t *testing.T) {
	svcs, pub, opener := newServices(t, false)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("no images here"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := DetectFolder(context.Background(), svcs, config.UltralightName, dir, DefaultFolderOptions())
	var invalid *model.InvalidArgumentError
	if !errors.As(err, &invalid) || invalid.Argument != "folder" {
		t.Fatalf("got %v, want InvalidArgumentError on folder", err)
	}
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
	if len(opener.Opened) != 0 {
		t.Errorf("%d models loaded for an empty folder", len(opener.Opened))
	}
	if len(pub.Runs()) != 0 {
		t.Errorf("runs published for an empty folder")
	}
}

func TestJSONToCSV(t *testing.T) {
	svcs, _, _ := newServices(t, false)
	dir := t.TempDir()

	detections := []model.FolderDetection{
		{ImageName: "a.png", X1: 1, Y1: 2, X2: 30.5, Y2: 40, Confidence: 0.9},
		{ImageName: "b.png", X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.75},
	}
	raw, _ := json.Marshal(detections)
	jsonPath := filepath.Join(dir, "in.json")
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	csvPath := filepath.Join(dir, "out", "detections.csv")
	if err := JSONToCSV(svcs, jsonPath, csvPath); err != nil {
		t.Fatalf("JSONToCSV failed: %v", err)
	}
	rows := readCSV(t, csvPath)
	want := [][]string{
		folderCSVHeader,
		{"a.png", "1", "2", "30.5", "40", "0.9"},
		{"b.png", "0", "0", "10", "10", "0.75"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}

	var notFound *model.InputNotFoundError
	if err := JSONToCSV(svcs, filepath.Join(dir, "none.json"), csvPath); !errors.As(err, &notFound) {
		t.Errorf("missing json: got %v", err)
	}
}

func TestValidateWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
		wantErr bool
	}{
		{"balanced", map[string]float64{"resnet_inception": 0.5, "efficientnet": 0.5}, false},
		{"within tolerance", map[string]float64{"resnet_inception": 0.3335, "efficientnet": 0.6670}, false},
		{"single", map[string]float64{"efficientnet": 1}, false},
		{"too much", map[string]float64{"resnet_inception": 0.6, "efficientnet": 0.6}, true},
		{"too little", map[string]float64{"resnet_inception": 0.4, "efficientnet": 0.4}, true},
		{"negative", map[string]float64{"resnet_inception": 1.5, "efficientnet": -0.5}, true},
		{"empty", map[string]float64{}, true},
		{"empty key", map[string]float64{"": 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateWeights(tt.weights)
			if tt.wantErr {
				var invalid *model.InvalidArgumentError
				if !errors.As(err, &invalid) {
					t.Errorf("got %v, want InvalidArgumentError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseWeights(t *testing.T) {
	got, err := ParseWeights([]string{"resnet_inception=0.7", "efficientnet=0.3"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"resnet_inception": 0.7, "efficientnet": 0.3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	for _, bad := range []string{"resnet_inception", "=0.5", "efficientnet=half"} {
		if _, err := ParseWeights([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestDeepfakeEnsemble(t *testing.T) {
	tests := []struct {
		weights   map[string]float64
		wantLabel string
	}{
		{map[string]float64{"resnet_inception": 0.7, "efficientnet": 0.3}, model.LabelFake},
		{map[string]float64{"resnet_inception": 0.2, "efficientnet": 0.8}, model.LabelReal},
	}
	for _, tt := range tests {
		svcs, pub, opener := newServices(t, false)
		dir := t.TempDir()
		media := writeImage(t, filepath.Join(dir, "face.png"))

		opts := DefaultEnsembleOptions()
		opts.Weights = tt.weights
		opts.OutputFolder = filepath.Join(dir, "out")

		result, err := DeepfakeEnsemble(context.Background(), svcs, media, opts)
		if err != nil {
			t.Fatalf("DeepfakeEnsemble failed: %v", err)
		}
		if result.Label != tt.wantLabel {
			t.Errorf("weights %v: label %s, want %s", tt.weights, result.Label, tt.wantLabel)
		}
		if result.Backend != EnsembleBackend {
			t.Errorf("backend %q", result.Backend)
		}

		var expected float64
		for name, w := range tt.weights {
			expected += w * result.Members[name]
		}
		if math.Abs(result.FakeProbability-expected) > 1e-9 {
			t.Errorf("fake probability %v, want weighted mean %v", result.FakeProbability, expected)
		}
		if result.Members["resnet_inception"] <= result.Members["efficientnet"] {
			t.Errorf("members = %v", result.Members)
		}

		raw, err := os.ReadFile(filepath.Join(opts.OutputFolder, EnsembleResultFile))
		if err != nil {
			t.Fatalf("missing %s: %v", EnsembleResultFile, err)
		}
		var saved EnsembleResult
		if err := json.Unmarshal(raw, &saved); err != nil {
			t.Fatal(err)
		}
		if saved.Label != result.Label || !reflect.DeepEqual(saved.Members, result.Members) {
			t.Errorf("saved result differs: %+v", saved)
		}

		runs := pub.Runs()
		if len(runs) != 1 || runs[0].Backend != EnsembleBackend {
			t.Errorf("published runs = %+v", runs)
		}
		if opener.Live() != 0 {
			t.Errorf("%d runtimes left open", opener.Live())
		}
	}
}

func TestDeepfakeEnsembleRejectsBadWeights(t *testing.T) {
	svcs, _, opener := newServices(t, false)
	media := writeImage(t, filepath.Join(t.TempDir(), "face.png"))

	opts := DefaultEnsembleOptions()
	opts.Weights = map[string]float64{"resnet_inception": 0.9, "efficientnet": 0.9}
	_, err := DeepfakeEnsemble(context.Background(), svcs, media, opts)
	var invalid *model.InvalidArgumentError
	if !errors.As(err, &invalid) {
		t.Errorf("got %v, want InvalidArgumentError", err)
	}
	if len(opener.Opened) != 0 {
		t.Errorf("models were loaded before validation")
	}
}

func TestDetectThenClassify(t *testing.T) {
	for _, faceless := range []bool{false, true} {
		svcs, pub, opener := newServices(t, faceless)
		dir := t.TempDir()
		media := writeImage(t, filepath.Join(dir, "face.png"))

		opts := deepfake.ClassifyOptions{
			SaveJSON:      true,
			JSONPath:      filepath.Join(dir, "out", "result.json"),
			SaveAnnotated: true,
			OutputFolder:  filepath.Join(dir, "out"),
		}
		result, err := DetectThenClassify(context.Background(), svcs, config.UltralightName, config.ResNetInceptionName, media, opts)
		if err != nil {
			t.Fatalf("faceless=%v: DetectThenClassify failed: %v", faceless, err)
		}
		if result.Label != model.LabelFake {
			t.Errorf("faceless=%v: label %s", faceless, result.Label)
		}
		if faceless != (result.Face == nil) {
			t.Errorf("faceless=%v: face = %+v", faceless, result.Face)
		}

		// The classifier sees the crop, not the frame
		var classifier *inference.Fake
		for _, f := range opener.Opened {
			if f.Spec.Name == config.ResNetInceptionName {
				classifier = f
			}
		}
		if classifier == nil || classifier.Calls != 1 {
			t.Fatalf("faceless=%v: classifier was not run once", faceless)
		}

		if _, err := os.Stat(opts.JSONPath); err != nil {
			t.Errorf("missing JSON: %v", err)
		}
		if _, err := os.Stat(deepfake.AnnotatedPath(opts.OutputFolder, media)); err != nil {
			t.Errorf("missing annotated image: %v", err)
		}
		if len(pub.Runs()) != 1 {
			t.Errorf("published %d runs", len(pub.Runs()))
		}
		if opener.Live() != 0 {
			t.Errorf("%d runtimes left open", opener.Live())
		}
	}
}

func TestCropRect(t *testing.T) {
	r := cropRect(model.BoundingBox{X: 50, Y: 40, Width: 100, Height: 50}, 200, 160)
	if r != image.Rect(30, 30, 170, 100) {
		t.Errorf("crop = %v", r)
	}

	r = cropRect(model.BoundingBox{X: 0, Y: 0, Width: 200, Height: 160}, 200, 160)
	if r != image.Rect(0, 0, 200, 160) {
		t.Errorf("crop at the edge = %v", r)
	}
}

func TestDetectThenReenact(t *testing.T) {
	dir := t.TempDir()
	source := writeImage(t, filepath.Join(dir, "source.png"))
	driving := filepath.Join(dir, "driving.mp4")
	if err := os.WriteFile(driving, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	svcs, _, _ := newServices(t, true)
	_, err := DetectThenReenact(context.Background(), svcs, config.UltralightName, config.TPSName, source, driving, reenactment.DefaultReenactOptions())
	var invalid *model.InvalidArgumentError
	if !errors.As(err, &invalid) || invalid.Argument != "source_image_path" {
		t.Errorf("faceless source: got %v", err)
	}

	// A face lets the call reach the reenactment registry
	svcs, _, _ = newServices(t, false)
	_, err = DetectThenReenact(context.Background(), svcs, config.UltralightName, "nope", source, driving, reenactment.DefaultReenactOptions())
	var unsupported *model.UnsupportedModelError
	if !errors.As(err, &unsupported) {
		t.Errorf("unknown reenactor: got %v", err)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("missing CSV: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}
