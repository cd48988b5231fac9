package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/lgr"
)

// FolderOptions drives a folder batch. Workers of 0 or 1 run sequentially.
type FolderOptions struct {
	Workers       int
	SaveJSON      bool
	JSONPath      string
	SaveAnnotated bool
	OutputFolder  string
	// CSVPath, when set, also exports the flattened detections as CSV.
	CSVPath string
}

func DefaultFolderOptions() FolderOptions {
	return FolderOptions{
		SaveJSON:     true,
		JSONPath:     "detections.json",
		OutputFolder: "output",
	}
}

type folderJob struct {
	index int
	path  string
}

type folderOutcome struct {
	result *model.DetectionResult
	err    error
}

// DetectFolder runs one detector per worker over every image in folder.
// Per-image failures are collected in the result, not returned.
func DetectFolder(ctx context.Context, svcs ServicesFactory, modelName, folder string, opts FolderOptions) (*model.FolderResult, error) {
	ctx, span := tracer.Start(ctx, "DetectFolder")
	defer span.End()
	span.SetAttributes(attribute.String("model", modelName), attribute.String("folder", folder))

	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return nil, &model.InputNotFoundError{Path: folder}
	}
	if opts.Workers < 0 {
		return nil, &model.InvalidArgumentError{Argument: "workers", Value: fmt.Sprint(opts.Workers), Reason: "must not be negative"}
	}
	if opts.SaveJSON && opts.JSONPath == "" {
		return nil, &model.InvalidArgumentError{Argument: "json_path", Reason: "required when save_json is set"}
	}
	if opts.SaveAnnotated && opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "required when save_annotated is set"}
	}

	images, err := listImages(folder)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, &model.InvalidArgumentError{Argument: "folder", Value: folder, Reason: "no valid images found"}
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(images) {
		workers = len(images)
	}

	// Every worker owns its detector; build them all before starting
	detectors := make([]facedetection.Detector, 0, workers)
	defer func() {
		for _, d := range detectors {
			d.Close()
		}
	}()
	for i := 0; i < workers; i++ {
		d, err := facedetection.Create(svcs.CfgSvc, modelName, svcs.detectorOptions()...)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
	}

	outcomes := make([]folderOutcome, len(images))
	jobs := make(chan folderJob)
	errorStream := make(chan interface{}, workers)
	statsStream := make(chan interface{}, workers)

	// Collector records what the workers report
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for errorStream != nil || statsStream != nil {
			select {
			case e, ok := <-errorStream:
				if !ok {
					errorStream = nil
					continue
				}
				if custom, ok := e.(model.CustomError); ok {
					svcs.recordError(custom)
				}
			case s, ok := <-statsStream:
				if !ok {
					statsStream = nil
					continue
				}
				if stats, ok := s.(model.BatchStats); ok && svcs.DataSvc != nil {
					if err := svcs.DataSvc.NewBatchStats(stats); err != nil {
						lgr.Logger.Error("failed to record batch stats", slog.Any("error", xerrors.New(err.Error())))
					}
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go func(worker int, d facedetection.Detector) {
			defer wg.Done()

			processed := 0
			errors := 0
			beginTime := time.Now()
			var totalProcTime time.Duration

			defer func() {
				var avgProcTime float64
				if processed > 0 {
					avgProcTime = totalProcTime.Seconds() / float64(processed)
				}
				statsStream <- model.BatchStats{
					Name:        "detectFolder",
					Worker:      worker,
					Backend:     modelName,
					Images:      processed,
					Errors:      errors,
					Uptime:      int64(time.Since(beginTime).Seconds()),
					AvgProcTime: avgProcTime,
				}
			}()

			for job := range jobs {
				start := time.Now()
				result, err := d.Detect(ctx, job.path, facedetection.DetectOptions{
					SaveAnnotated: opts.SaveAnnotated,
					OutputFolder:  filepath.Join(opts.OutputFolder, stem(job.path)),
				})
				totalProcTime += time.Since(start)
				processed++

				outcomes[job.index] = folderOutcome{result: result, err: err}
				if err != nil {
					errors++
					errorStream <- model.GenError("detect_folder",
						err,
						map[string]interface{}{"image": job.path, "worker": worker},
						"failed to detect faces")
				}
			}
		}(i, d)
	}

	canceled := false
feed:
	for i, path := range images {
		select {
		case <-ctx.Done():
			canceled = true
			break feed
		case jobs <- folderJob{index: i, path: path}:
		}
	}
	close(jobs)
	wg.Wait()
	close(errorStream)
	close(statsStream)
	<-collected

	if canceled {
		return nil, ctx.Err()
	}

	result := &model.FolderResult{Detections: []model.FolderDetection{}}
	for i, outcome := range outcomes {
		name := filepath.Base(images[i])
		if outcome.err != nil {
			result.Failures = append(result.Failures, model.FolderFailure{ImageName: name, Error: outcome.err.Error()})
			continue
		}
		svcs.record(model.RunFromDetection(outcome.result))
		for _, face := range outcome.result.Faces {
			b := face.BoundingBox
			result.Detections = append(result.Detections, model.FolderDetection{
				ImageName:  name,
				X1:         b.X,
				Y1:         b.Y,
				X2:         b.X2(),
				Y2:         b.Y2(),
				Confidence: face.Confidence,
			})
		}
	}

	lgr.Logger.Info("folder detection done",
		slog.String("model", modelName),
		slog.Int("images", len(images)),
		slog.Int("faces", len(result.Detections)),
		slog.Int("failures", len(result.Failures)),
		slog.Int("workers", workers),
	)

	if opts.SaveJSON {
		if err := svcs.Artifacts().WriteJSON(opts.JSONPath, result.Detections); err != nil {
			return result, err
		}
	}
	if opts.CSVPath != "" {
		if err := WriteFolderCSV(svcs, opts.CSVPath, result.Detections); err != nil {
			return result, err
		}
	}
	return result, nil
}

// listImages returns the supported images directly inside folder, sorted by name.
func listImages(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, &model.InputNotFoundError{Path: folder}
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(folder, e.Name())
		if model.KindOf(path) == model.MediaImage {
			images = append(images, path)
		}
	}
	sort.Strings(images)
	return images, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
