package landmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/overlay"
	"github.com/khaledhikmat/facekit/service/storage"
)

type extractor struct {
	name     string
	detector facedetection.Detector
	storage  storage.IService
}

func (e *extractor) Name() string {
	return e.name
}

func (e *extractor) Close() error {
	if e.detector == nil {
		return nil
	}
	err := e.detector.Close()
	e.detector = nil
	return err
}

func (e *extractor) ExtractFrame(ctx context.Context, frame gocv.Mat) ([]model.FaceLandmarks, error) {
	faces, err := e.detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	return model.NewLandmarkFrame(0, faces).Landmarks, nil
}

func (e *extractor) detect(ctx context.Context, frame gocv.Mat) ([]model.Detection, error) {
	if e.detector == nil {
		return nil, &model.InferenceError{Backend: e.name, Err: fmt.Errorf("extractor is closed")}
	}
	return e.detector.DetectFrame(ctx, frame)
}

// Extract dispatches on the media extension. Persistence failures come
// back together with the result.
func (e *extractor) Extract(ctx context.Context, mediaPath string, opts ExtractOptions) (*model.LandmarkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.CheckInput(mediaPath); err != nil {
		return nil, err
	}
	kind := model.KindOf(mediaPath)
	if kind == model.MediaUnknown {
		return nil, &model.InvalidArgumentError{Argument: "media_path", Value: mediaPath, Reason: "unsupported media extension"}
	}
	if opts.FrameInterval < 0 {
		return nil, &model.InvalidArgumentError{Argument: "frame_interval", Value: fmt.Sprint(opts.FrameInterval), Reason: "must not be negative"}
	}
	if opts.FrameInterval == 0 {
		opts.FrameInterval = 1
	}
	if opts.SaveAnnotated && opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "required when save_annotated is set"}
	}
	if opts.SaveJSON && opts.JSONPath == "" {
		opts.JSONPath = JSONPath(opts.OutputFolder, mediaPath)
	}

	result := &model.LandmarkResult{
		ID:        uuid.NewString(),
		Backend:   e.name,
		Source:    mediaPath,
		Video:     kind == model.MediaVideo,
		Timestamp: time.Now().UTC(),
	}
	if result.Video {
		return e.extractVideo(ctx, result, opts)
	}
	return e.extractImage(ctx, result, opts)
}

func (e *extractor) extractImage(ctx context.Context, result *model.LandmarkResult, opts ExtractOptions) (*model.LandmarkResult, error) {
	img := gocv.IMRead(result.Source, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, &model.InferenceError{Backend: e.name, Err: fmt.Errorf("cannot decode image %s", result.Source)}
	}

	faces, err := e.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	frame := model.NewLandmarkFrame(0, faces)
	result.Frames = []model.LandmarkFrame{frame}

	if opts.SaveJSON {
		if err := e.storage.WriteJSON(opts.JSONPath, result.Document()); err != nil {
			return result, err
		}
	}

	if opts.SaveAnnotated {
		annotated := img.Clone()
		defer annotated.Close()

		path := AnnotatedPath(opts.OutputFolder, result.Source)
		if err := overlay.DrawLandmarks(&annotated, frame.Landmarks); err != nil {
			return result, &model.PersistenceError{Path: path, Err: err}
		}
		if err := e.storage.WriteImage(path, annotated); err != nil {
			return result, err
		}
		result.AnnotatedPath = path
	}
	return result, nil
}

// extractVideo reads the video once. Sampled frames are extracted and, when
// annotating, every frame is copied to the annotated video.
func (e *extractor) extractVideo(ctx context.Context, result *model.LandmarkResult, opts ExtractOptions) (*model.LandmarkResult, error) {
	vc, err := gocv.VideoCaptureFile(result.Source)
	if err != nil {
		return nil, &model.InferenceError{Backend: e.name, Err: fmt.Errorf("cannot open video %s: %w", result.Source, err)}
	}
	defer vc.Close()

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}

	var sink *storage.VideoSink
	if opts.SaveAnnotated {
		sink = storage.NewVideoSink(e.storage)
		defer sink.Abort()
	}
	annotatedPath := AnnotatedPath(opts.OutputFolder, result.Source)

	frame := gocv.NewMat()
	defer frame.Close()

	// The first write failure stops annotating but not extracting
	var persistErr error
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			break
		}

		var points []model.FaceLandmarks
		if index%opts.FrameInterval == 0 {
			faces, err := e.detect(ctx, frame)
			if err != nil {
				return nil, err
			}
			lf := model.NewLandmarkFrame(index, faces)
			result.Frames = append(result.Frames, lf)
			points = lf.Landmarks
		}

		if sink != nil && persistErr == nil {
			persistErr = annotateFrame(sink, annotatedPath, fps, frame, points)
		}
	}
	if len(result.Frames) == 0 {
		return nil, &model.InferenceError{Backend: e.name, Err: fmt.Errorf("no decodable frames in %s", result.Source)}
	}

	if opts.SaveJSON {
		if err := e.storage.WriteJSON(opts.JSONPath, result.Document()); err != nil {
			return result, err
		}
	}
	if sink != nil {
		if persistErr != nil {
			return result, persistErr
		}
		path, err := sink.Commit()
		if err != nil {
			return result, err
		}
		result.AnnotatedPath = path
	}
	return result, nil
}

func annotateFrame(sink *storage.VideoSink, path string, fps float64, frame gocv.Mat, faces []model.FaceLandmarks) error {
	if !sink.Opened() {
		if err := sink.Open(path, fps, frame.Cols(), frame.Rows()); err != nil {
			return err
		}
	}
	if len(faces) == 0 {
		return sink.Write(frame)
	}

	annotated := frame.Clone()
	defer annotated.Close()
	if err := overlay.DrawLandmarks(&annotated, faces); err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	return sink.Write(annotated)
}

// AnnotatedPath is where the annotated copy of mediaPath is written.
func AnnotatedPath(outputFolder, mediaPath string) string {
	return filepath.Join(outputFolder, stem(mediaPath)+"_landmarks"+filepath.Ext(mediaPath))
}

// JSONPath is the default landmarks document for mediaPath.
func JSONPath(outputFolder, mediaPath string) string {
	suffix := "_landmarks.json"
	if model.KindOf(mediaPath) == model.MediaVideo {
		suffix = "_video_landmarks.json"
	}
	return filepath.Join(outputFolder, stem(mediaPath)+suffix)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
