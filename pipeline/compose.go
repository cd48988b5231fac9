package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/deepfake"
	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/landmarks"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/overlay"
	"github.com/khaledhikmat/facekit/reenactment"
)

// FaceMargin widens a face crop on every side, as a fraction of the box size.
const FaceMargin = 0.2

// FaceClassification is a deepfake verdict on the largest face of an image.
// Face is nil when no face was found and the whole frame was scored.
type FaceClassification struct {
	model.Classification
	Detector string           `json:"detector"`
	Face     *model.Detection `json:"face,omitempty"`
}

// Detect creates a detector, runs it once and records the run.
func Detect(ctx context.Context, svcs ServicesFactory, modelName, imagePath string, opts facedetection.DetectOptions) (*model.DetectionResult, error) {
	d, err := facedetection.Create(svcs.CfgSvc, modelName, svcs.detectorOptions()...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	result, err := d.Detect(ctx, imagePath, opts)
	if result != nil {
		svcs.record(model.RunFromDetection(result))
	}
	return result, err
}

func Classify(ctx context.Context, svcs ServicesFactory, modelName, mediaPath string, opts deepfake.ClassifyOptions) (*model.Classification, error) {
	result, err := classifyOnce(ctx, svcs, modelName, mediaPath, opts)
	if result != nil {
		svcs.record(model.RunFromClassification(result))
	}
	return result, err
}

func Reenact(ctx context.Context, svcs ServicesFactory, modelName, sourceImagePath, drivingVideoPath string, opts reenactment.ReenactOptions) (*model.Reenactment, error) {
	r, err := reenactment.Create(svcs.CfgSvc, modelName, svcs.reenactorOptions()...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	result, err := r.Reenact(ctx, sourceImagePath, drivingVideoPath, opts)
	if result != nil {
		svcs.record(model.RunFromReenactment(result))
	}
	return result, err
}

func ExtractLandmarks(ctx context.Context, svcs ServicesFactory, modelName, mediaPath string, opts landmarks.ExtractOptions) (*model.LandmarkResult, error) {
	e, err := landmarks.Create(svcs.CfgSvc, modelName, svcs.extractorOptions()...)
	if err != nil {
		return nil, err
	}
	defer e.Close()

	result, err := e.Extract(ctx, mediaPath, opts)
	if result != nil {
		svcs.record(model.RunFromLandmarks(result))
	}
	return result, err
}

// DetectThenClassify scores the largest detected face instead of the whole
// image. Images without a face are scored as a whole.
func DetectThenClassify(ctx context.Context, svcs ServicesFactory, detectorName, classifierName, imagePath string, opts deepfake.ClassifyOptions) (*FaceClassification, error) {
	ctx, span := tracer.Start(ctx, "DetectThenClassify")
	defer span.End()
	span.SetAttributes(
		attribute.String("detector", detectorName),
		attribute.String("classifier", classifierName),
	)

	frame, err := readImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer frame.Close()
	if opts.SaveJSON && opts.JSONPath == "" {
		return nil, &model.InvalidArgumentError{Argument: "json_path", Reason: "required when save_json is set"}
	}
	if opts.SaveAnnotated && opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "required when save_annotated is set"}
	}

	d, err := facedetection.Create(svcs.CfgSvc, detectorName, svcs.detectorOptions()...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	c, err := deepfake.Create(svcs.CfgSvc, classifierName, svcs.classifierOptions()...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	faces, err := d.DetectFrame(ctx, frame)
	if err != nil {
		return nil, err
	}

	result := &FaceClassification{Detector: detectorName}
	region := image.Rect(0, 0, frame.Cols(), frame.Rows())
	if best, ok := (&model.DetectionResult{Faces: faces}).Largest(); ok {
		result.Face = &best
		region = cropRect(best.BoundingBox, frame.Cols(), frame.Rows())
	}

	// Clone so the crop is continuous before conversion
	roi := frame.Region(region)
	crop := roi.Clone()
	roi.Close()
	img, err := crop.ToImage()
	crop.Close()
	if err != nil {
		return nil, &model.InferenceError{Backend: classifierName, Err: err}
	}

	p, err := c.Score(ctx, img)
	if err != nil {
		return nil, err
	}
	label, confidence := model.Verdict(p, classifierThreshold(svcs, classifierName))
	result.Classification = model.Classification{
		ID:              uuid.NewString(),
		Backend:         classifierName,
		Source:          imagePath,
		Timestamp:       time.Now().UTC(),
		Label:           label,
		Confidence:      confidence,
		FakeProbability: p,
	}
	svcs.record(model.RunFromClassification(&result.Classification))

	if opts.SaveJSON {
		if err := svcs.Artifacts().WriteJSON(opts.JSONPath, result); err != nil {
			return result, err
		}
	}
	if opts.SaveAnnotated {
		preview := frame.Clone()
		defer preview.Close()

		if len(faces) > 0 {
			path := deepfake.AnnotatedPath(opts.OutputFolder, imagePath)
			if err := overlay.DrawDetections(&preview, []model.Detection{*result.Face}); err != nil {
				return result, &model.PersistenceError{Path: path, Err: err}
			}
		}
		opts.SaveJSON = false
		if err := deepfake.Persist(svcs.Artifacts(), &result.Classification, preview, opts); err != nil {
			return result, err
		}
	}
	return result, nil
}

// DetectThenReenact refuses source images without a face before paying for
// the reenactment.
func DetectThenReenact(ctx context.Context, svcs ServicesFactory, detectorName, reenactorName, sourceImagePath, drivingVideoPath string, opts reenactment.ReenactOptions) (*model.Reenactment, error) {
	ctx, span := tracer.Start(ctx, "DetectThenReenact")
	defer span.End()
	span.SetAttributes(
		attribute.String("detector", detectorName),
		attribute.String("reenactor", reenactorName),
	)

	frame, err := readImage(sourceImagePath)
	if err != nil {
		return nil, err
	}
	defer frame.Close()

	d, err := facedetection.Create(svcs.CfgSvc, detectorName, svcs.detectorOptions()...)
	if err != nil {
		return nil, err
	}
	faces, err := d.DetectFrame(ctx, frame)
	d.Close()
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, &model.InvalidArgumentError{Argument: "source_image_path", Value: sourceImagePath, Reason: "no face detected"}
	}

	return Reenact(ctx, svcs, reenactorName, sourceImagePath, drivingVideoPath, opts)
}

func readImage(path string) (gocv.Mat, error) {
	if err := model.CheckInput(path); err != nil {
		return gocv.Mat{}, err
	}
	if model.KindOf(path) != model.MediaImage {
		return gocv.Mat{}, &model.InvalidArgumentError{Argument: "image_path", Value: path, Reason: "unsupported image extension"}
	}
	frame := gocv.IMRead(path, gocv.IMReadColor)
	if frame.Empty() {
		frame.Close()
		return gocv.Mat{}, &model.InferenceError{Backend: "opencv", Err: fmt.Errorf("cannot decode image %s", path)}
	}
	return frame, nil
}

// cropRect grows the box by FaceMargin and keeps it inside the frame.
func cropRect(box model.BoundingBox, width, height int) image.Rectangle {
	mx := box.Width * FaceMargin
	my := box.Height * FaceMargin
	grown := model.BoxFromCorners(box.X-mx, box.Y-my, box.X2()+mx, box.Y2()+my).Clamp(float64(width), float64(height))

	r := image.Rect(int(grown.X), int(grown.Y), int(grown.X2()), int(grown.Y2()))
	if r.Empty() {
		return image.Rect(0, 0, width, height)
	}
	return r
}

func classifierThreshold(svcs ServicesFactory, name string) float64 {
	if t := svcs.CfgSvc.GetModelParameters(name).ConfidenceThreshold; t > 0 {
		return t
	}
	return deepfake.DefaultThreshold
}
