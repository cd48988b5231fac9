package mode

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/service/lgr"
)

// Detect runs one detector over an image, or over every image of a folder.
func Detect(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) != 2 {
		return &UsageError{Mode: "detect", Usage: "<model> <image|folder>"}
	}
	modelName, target := args[0], args[1]
	output := svcs.CfgSvc.GetOutputFolder()
	misc := map[string]interface{}{"model": modelName, "target": target}

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		opts := pipeline.FolderOptions{
			Workers:       svcs.CfgSvc.GetMaxWorkers(),
			SaveJSON:      true,
			JSONPath:      filepath.Join(output, outputStem(target)+"_detections.json"),
			SaveAnnotated: true,
			OutputFolder:  output,
			CSVPath:       filepath.Join(output, outputStem(target)+"_detections.csv"),
		}
		result, err := pipeline.DetectFolder(canxCtx, svcs, modelName, target, opts)
		if err != nil {
			return reportFailure(svcs, "detect_folder", err, misc)
		}
		lgr.Logger.Info("folder detected",
			slog.String("folder", target),
			slog.Int("detections", len(result.Detections)),
			slog.Int("failures", len(result.Failures)),
			slog.String("json", opts.JSONPath),
		)
		return nil
	}

	opts := facedetection.DetectOptions{
		SaveJSON:      true,
		JSONPath:      filepath.Join(output, outputStem(target)+"_detections.json"),
		SaveAnnotated: true,
		OutputFolder:  output,
	}
	result, err := pipeline.Detect(canxCtx, svcs, modelName, target, opts)
	if err != nil {
		return reportFailure(svcs, "detect", err, misc)
	}

	lgr.Logger.Info("image detected",
		slog.String("image", target),
		slog.String("model", result.Backend),
		slog.Int("faces", len(result.Faces)),
		slog.String("annotated", facedetection.AnnotatedPath(output, target)),
	)
	return nil
}
