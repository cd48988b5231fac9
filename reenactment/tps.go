package reenactment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/overlay"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/storage"
)

const defaultFPS = 25

// tps is Thin Plate Spline motion transfer: a keypoint detector plus a
// generator that warps the source toward the driving keypoints.
type tps struct {
	name      string
	kp        inference.IService
	generator inference.IService
	size      int
	storage   storage.IService
}

func newTPS(name string, params config.ModelParameters, libraryPath string, open inference.Opener, svc storage.IService) (*tps, error) {
	kp, err := open(inference.ModelSpec{
		Name:        name + "/kp_detector",
		Runtime:     params.Runtime,
		Path:        params.ModelPaths["kp_detector"],
		InputNames:  []string{"source"},
		OutputNames: []string{"kp"},
		Threads:     params.Threads,
		LibraryPath: libraryPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load keypoint detector: %w", err)
	}

	generator, err := open(inference.ModelSpec{
		Name:        name + "/generator",
		Runtime:     params.Runtime,
		Path:        params.ModelPaths["generator"],
		InputNames:  []string{"source", "kp_driving", "kp_source"},
		OutputNames: []string{"out"},
		Threads:     params.Threads,
		LibraryPath: libraryPath,
	})
	if err != nil {
		kp.Close()
		return nil, fmt.Errorf("failed to load generator: %w", err)
	}

	return &tps{
		name:      name,
		kp:        kp,
		generator: generator,
		size:      params.InputWidth,
		storage:   svc,
	}, nil
}

func (r *tps) Name() string {
	return r.name
}

func (r *tps) Close() error {
	if r.kp == nil {
		return nil
	}
	err := r.kp.Close()
	if genErr := r.generator.Close(); err == nil {
		err = genErr
	}
	r.kp, r.generator = nil, nil
	return err
}

func (r *tps) Reenact(ctx context.Context, sourceImagePath, drivingVideoPath string, opts ReenactOptions) (*model.Reenactment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := model.CheckInput(sourceImagePath); err != nil {
		return nil, err
	}
	if err := model.CheckInput(drivingVideoPath); err != nil {
		return nil, err
	}
	if model.KindOf(sourceImagePath) != model.MediaImage {
		return nil, &model.InvalidArgumentError{Argument: "source_path", Value: sourceImagePath, Reason: "unsupported image extension"}
	}
	if model.KindOf(drivingVideoPath) != model.MediaVideo {
		return nil, &model.InvalidArgumentError{Argument: "driving_video_path", Value: drivingVideoPath, Reason: "unsupported video extension"}
	}
	if opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "must not be empty"}
	}
	if opts.MaxFrames < 0 {
		return nil, &model.InvalidArgumentError{Argument: "max_frames", Value: fmt.Sprint(opts.MaxFrames), Reason: "must not be negative"}
	}
	if r.kp == nil {
		return nil, &model.InferenceError{Backend: r.name, Err: fmt.Errorf("reenactor is closed")}
	}

	source := gocv.IMRead(sourceImagePath, gocv.IMReadColor)
	defer source.Close()
	if source.Empty() {
		return nil, &model.InferenceError{Backend: r.name, Err: fmt.Errorf("cannot decode image %s", sourceImagePath)}
	}

	vc, err := gocv.VideoCaptureFile(drivingVideoPath)
	if err != nil {
		return nil, &model.InferenceError{Backend: r.name, Err: fmt.Errorf("cannot open video %s: %w", drivingVideoPath, err)}
	}
	defer vc.Close()

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}

	outputPath, comparisonPath := OutputPaths(opts.OutputFolder, sourceImagePath, drivingVideoPath)
	w := storage.NewVideoSink(r.storage)
	defer w.Abort()

	if err := w.Open(outputPath, fps, r.size, r.size); err != nil {
		return nil, err
	}
	var cmp *storage.VideoSink
	if opts.SaveComparison {
		cmp = storage.NewVideoSink(r.storage)
		defer cmp.Abort()
		if err := cmp.Open(comparisonPath, fps, 3*r.size, r.size); err != nil {
			return nil, err
		}
	}

	frames, err := r.animate(ctx, source, vc, opts.MaxFrames, w, cmp)
	if err != nil {
		return nil, err
	}
	if frames == 0 {
		return nil, &model.InferenceError{Backend: r.name, Err: fmt.Errorf("no decodable frames in %s", drivingVideoPath)}
	}

	result := &model.Reenactment{
		ID:        uuid.NewString(),
		Backend:   r.name,
		Source:    sourceImagePath,
		Driving:   drivingVideoPath,
		Timestamp: time.Now().UTC(),
		Frames:    frames,
	}
	if result.OutputPath, err = w.Commit(); err != nil {
		return nil, err
	}
	if cmp != nil {
		if result.ComparisonPath, err = cmp.Commit(); err != nil {
			// Both videos land or neither does
			_ = os.Remove(result.OutputPath)
			return nil, err
		}
	}
	return result, nil
}

// animate drives the source with every frame of vc and returns the frame count.
func (r *tps) animate(ctx context.Context, source gocv.Mat, vc *gocv.VideoCapture, maxFrames int, out, cmp *storage.VideoSink) (int, error) {
	src, err := inference.FrameTensor(source, r.size, r.size, 0, 1.0/255, true)
	if err != nil {
		return 0, &model.InferenceError{Backend: r.name, Err: err}
	}
	src.Name = "source"

	kpSource, err := r.keypoints(src)
	if err != nil {
		return 0, err
	}

	frame := gocv.NewMat()
	defer frame.Close()

	var kpInitial []float32
	count := 0
	for maxFrames == 0 || count < maxFrames {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			break
		}

		drv, err := inference.FrameTensor(frame, r.size, r.size, 0, 1.0/255, true)
		if err != nil {
			return count, &model.InferenceError{Backend: r.name, Err: err}
		}
		drv.Name = "source"
		kpDriving, err := r.keypoints(drv)
		if err != nil {
			return count, err
		}
		if len(kpDriving.Data) != len(kpSource.Data) {
			return count, &model.InferenceError{Backend: r.name, Err: fmt.Errorf("keypoint count changed between frames")}
		}
		if kpInitial == nil {
			kpInitial = append([]float32(nil), kpDriving.Data...)
		}

		generated, err := r.generate(src, kpSource, relativeMotion(kpSource, kpDriving, kpInitial))
		if err != nil {
			return count, err
		}

		err = r.write(source, frame, generated, out, cmp)
		generated.Close()
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (r *tps) keypoints(img inference.Tensor) (inference.Tensor, error) {
	outputs, err := r.kp.Run([]inference.Tensor{img})
	if err != nil {
		return inference.Tensor{}, &model.InferenceError{Backend: r.name, Err: err}
	}
	if len(outputs) == 0 || len(outputs[0].Data)%2 != 0 {
		return inference.Tensor{}, &model.InferenceError{Backend: r.name, Err: fmt.Errorf("unexpected keypoint output")}
	}
	return outputs[0], nil
}

func (r *tps) generate(src, kpSource, kpDriving inference.Tensor) (gocv.Mat, error) {
	kpSource.Name = "kp_source"
	kpDriving.Name = "kp_driving"
	outputs, err := r.generator.Run([]inference.Tensor{src, kpDriving, kpSource})
	if err != nil {
		return gocv.NewMat(), &model.InferenceError{Backend: r.name, Err: err}
	}
	if len(outputs) == 0 {
		return gocv.NewMat(), &model.InferenceError{Backend: r.name, Err: fmt.Errorf("generator returned no outputs")}
	}

	mat, err := inference.TensorFrame(outputs[0])
	if err != nil {
		mat.Close()
		return gocv.NewMat(), &model.InferenceError{Backend: r.name, Err: err}
	}
	return mat, nil
}

func (r *tps) write(source, driving, generated gocv.Mat, out, cmp *storage.VideoSink) error {
	if err := out.Write(generated); err != nil {
		return err
	}
	if cmp == nil {
		return nil
	}

	joined, err := overlay.SideBySide([]gocv.Mat{source, driving, generated}, r.size, r.size)
	defer joined.Close()
	if err != nil {
		return &model.PersistenceError{Path: cmp.Path(), Err: err}
	}
	return cmp.Write(joined)
}

// relativeMotion moves the source keypoints by how far the driving ones
// travelled since the first driving frame.
func relativeMotion(kpSource, kpDriving inference.Tensor, kpInitial []float32) inference.Tensor {
	data := make([]float32, len(kpSource.Data))
	for i := range data {
		data[i] = kpSource.Data[i] + kpDriving.Data[i] - kpInitial[i]
	}
	return inference.Tensor{
		Shape: append([]int64(nil), kpDriving.Shape...),
		Data:  data,
	}
}

// OutputPaths names the reenacted video and its comparison companion.
func OutputPaths(outputFolder, sourceImagePath, drivingVideoPath string) (string, string) {
	stem := func(p string) string {
		base := filepath.Base(p)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	name := fmt.Sprintf("%s_by_%s.mp4", stem(sourceImagePath), stem(drivingVideoPath))
	return filepath.Join(outputFolder, name), filepath.Join(outputFolder, "comparison_"+name)
}
