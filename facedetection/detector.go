package facedetection

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/overlay"
	"github.com/khaledhikmat/facekit/service/storage"
)

type detector struct {
	name    string
	backend backend
	storage storage.IService
}

func (d *detector) Name() string {
	return d.name
}

func (d *detector) Close() error {
	if d.backend == nil {
		return nil
	}
	err := d.backend.Close()
	d.backend = nil
	return err
}

func (d *detector) Detect(ctx context.Context, imagePath string, opts DetectOptions) (*model.DetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.CheckInput(imagePath); err != nil {
		return nil, err
	}
	if model.KindOf(imagePath) != model.MediaImage {
		return nil, &model.InvalidArgumentError{Argument: "image_path", Value: imagePath, Reason: "unsupported image extension"}
	}
	if opts.SaveJSON && opts.JSONPath == "" {
		return nil, &model.InvalidArgumentError{Argument: "json_path", Reason: "required when save_json is set"}
	}
	if opts.SaveAnnotated && opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "required when save_annotated is set"}
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, &model.InferenceError{Backend: d.name, Err: fmt.Errorf("cannot decode image %s", imagePath)}
	}

	faces, err := d.DetectFrame(ctx, img)
	if err != nil {
		return nil, err
	}

	result := &model.DetectionResult{
		ID:        uuid.NewString(),
		Backend:   d.name,
		Source:    imagePath,
		Timestamp: time.Now().UTC(),
		Width:     img.Cols(),
		Height:    img.Rows(),
		Faces:     faces,
	}

	if opts.SaveJSON {
		if err := d.storage.WriteJSON(opts.JSONPath, result.Faces); err != nil {
			return result, err
		}
	}

	if opts.SaveAnnotated {
		annotated := img.Clone()
		defer annotated.Close()

		path := AnnotatedPath(opts.OutputFolder, imagePath)
		if err := overlay.DrawDetections(&annotated, faces); err != nil {
			return result, &model.PersistenceError{Path: path, Err: err}
		}
		if err := d.storage.WriteImage(path, annotated); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (d *detector) DetectFrame(ctx context.Context, frame gocv.Mat) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.backend == nil {
		return nil, &model.InferenceError{Backend: d.name, Err: fmt.Errorf("detector is closed")}
	}

	raw, err := d.backend.infer(frame)
	if err != nil {
		return nil, &model.InferenceError{Backend: d.name, Err: err}
	}

	w, h := float64(frame.Cols()), float64(frame.Rows())
	faces := make([]model.Detection, 0, len(raw))
	for _, f := range raw {
		f.Confidence = model.NormalizeConfidence(f.Confidence)
		f.BoundingBox = f.BoundingBox.Clamp(w, h)
		if f.BoundingBox.Area() == 0 {
			continue
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// AnnotatedPath is where the annotated copy of imagePath is written.
func AnnotatedPath(outputFolder, imagePath string) string {
	base := filepath.Base(imagePath)
	ext := filepath.Ext(base)
	return filepath.Join(outputFolder, strings.TrimSuffix(base, ext)+"_detected"+ext)
}
