package deepfake

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/overlay"
	"github.com/khaledhikmat/facekit/service/storage"
)

type classifier struct {
	name      string
	backend   backend
	storage   storage.IService
	threshold float64
}

func (c *classifier) Name() string {
	return c.name
}

func (c *classifier) Close() error {
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	return err
}

func (c *classifier) Score(ctx context.Context, img image.Image) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.backend == nil {
		return 0, &model.InferenceError{Backend: c.name, Err: fmt.Errorf("classifier is closed")}
	}

	p, err := c.backend.score(img)
	if err != nil {
		return 0, &model.InferenceError{Backend: c.name, Err: err}
	}
	return model.NormalizeConfidence(p), nil
}

func (c *classifier) Classify(ctx context.Context, mediaPath string, opts ClassifyOptions) (*model.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.CheckInput(mediaPath); err != nil {
		return nil, err
	}
	if opts.NumFrames < 0 {
		return nil, &model.InvalidArgumentError{Argument: "num_frames", Value: fmt.Sprint(opts.NumFrames), Reason: "must not be negative"}
	}
	if opts.NumFrames == 0 {
		opts.NumFrames = DefaultNumFrames
	}
	if opts.SaveJSON && opts.JSONPath == "" {
		return nil, &model.InvalidArgumentError{Argument: "json_path", Reason: "required when save_json is set"}
	}
	if opts.SaveAnnotated && opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "required when save_annotated is set"}
	}

	// The first scored frame doubles as the annotated preview
	preview := gocv.NewMat()
	defer preview.Close()

	var frames []model.FrameScore
	scoreFrame := func(index int, frame gocv.Mat) error {
		img, err := matImage(frame)
		if err != nil {
			return &model.InferenceError{Backend: c.name, Err: err}
		}
		p, err := c.Score(ctx, img)
		if err != nil {
			return err
		}
		if preview.Empty() {
			frame.CopyTo(&preview)
		}
		frames = append(frames, model.FrameScore{Frame: index, FakeProbability: p})
		return nil
	}

	switch model.KindOf(mediaPath) {
	case model.MediaImage:
		img := gocv.IMRead(mediaPath, gocv.IMReadColor)
		defer img.Close()
		if img.Empty() {
			return nil, &model.InferenceError{Backend: c.name, Err: fmt.Errorf("cannot decode image %s", mediaPath)}
		}
		if err := scoreFrame(0, img); err != nil {
			return nil, err
		}
	case model.MediaVideo:
		if _, err := visitFrames(ctx, mediaPath, opts.NumFrames, scoreFrame); err != nil {
			return nil, err
		}
		if len(frames) == 0 {
			return nil, &model.InferenceError{Backend: c.name, Err: fmt.Errorf("no decodable frames in %s", mediaPath)}
		}
	default:
		return nil, &model.InvalidArgumentError{Argument: "media_path", Value: mediaPath, Reason: "unsupported media extension"}
	}

	var sum float64
	for _, f := range frames {
		sum += f.FakeProbability
	}
	fakeProb := sum / float64(len(frames))
	label, confidence := model.Verdict(fakeProb, c.threshold)

	result := &model.Classification{
		ID:              uuid.NewString(),
		Backend:         c.name,
		Source:          mediaPath,
		Timestamp:       time.Now().UTC(),
		Label:           label,
		Confidence:      confidence,
		FakeProbability: model.NormalizeConfidence(fakeProb),
		Frames:          frames,
	}

	if err := Persist(c.storage, result, preview, opts); err != nil {
		return result, err
	}
	return result, nil
}

// Persist writes the artifacts requested by opts for a finished classification.
func Persist(svc storage.IService, result *model.Classification, preview gocv.Mat, opts ClassifyOptions) error {
	if opts.SaveJSON {
		if err := svc.WriteJSON(opts.JSONPath, result); err != nil {
			return err
		}
	}

	if opts.SaveAnnotated && !preview.Empty() {
		annotated := preview.Clone()
		defer annotated.Close()

		path := AnnotatedPath(opts.OutputFolder, result.Source)
		if err := overlay.DrawLabel(&annotated, result.Label, result.Confidence); err != nil {
			return &model.PersistenceError{Path: path, Err: err}
		}
		if err := svc.WriteImage(path, annotated); err != nil {
			return err
		}
	}
	return nil
}

// AnnotatedPath keeps the source raster format; videos get a JPEG preview.
func AnnotatedPath(outputFolder, mediaPath string) string {
	base := filepath.Base(mediaPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if model.KindOf(mediaPath) != model.MediaImage {
		ext = ".jpg"
	}
	return filepath.Join(outputFolder, stem+"_classified"+ext)
}
