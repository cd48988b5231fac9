package mode

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/khaledhikmat/facekit/landmarks"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/service/lgr"
)

// Landmarks extracts keypoints from an image or a video. An optional third
// argument keeps every n-th video frame.
func Landmarks(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) != 2 && len(args) != 3 {
		return &UsageError{Mode: "landmarks", Usage: "<model> <image|video> [frame-interval]"}
	}
	modelName, target := args[0], args[1]

	opts := landmarks.DefaultExtractOptions()
	opts.SaveAnnotated = true
	opts.OutputFolder = svcs.CfgSvc.GetOutputFolder()
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return &UsageError{Mode: "landmarks", Usage: "<model> <image|video> [frame-interval]"}
		}
		opts.FrameInterval = n
	}

	result, err := pipeline.ExtractLandmarks(canxCtx, svcs, modelName, target, opts)
	if err != nil {
		return reportFailure(svcs, "landmarks", err, map[string]interface{}{"model": modelName, "target": target})
	}

	lgr.Logger.Info("landmarks extracted",
		slog.String("media", target),
		slog.String("model", result.Backend),
		slog.Int("frames", len(result.Frames)),
		slog.Int("faces", result.Faces()),
		slog.String("json", landmarks.JSONPath(opts.OutputFolder, target)),
		slog.String("annotated", result.AnnotatedPath),
	)
	return nil
}
