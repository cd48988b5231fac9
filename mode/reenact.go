package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/reenactment"
	"github.com/khaledhikmat/facekit/service/lgr"
)

func Reenact(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) != 2 {
		return &UsageError{Mode: "reenact", Usage: "<source-image> <driving-video>"}
	}
	source, driving := args[0], args[1]

	opts := reenactment.DefaultReenactOptions()
	opts.OutputFolder = svcs.CfgSvc.GetOutputFolder()

	result, err := pipeline.DetectThenReenact(canxCtx, svcs, string(facedetection.BlazeFace), string(reenactment.TPS), source, driving, opts)
	if err != nil {
		return reportFailure(svcs, "reenact", err, map[string]interface{}{"source": source, "driving": driving})
	}

	lgr.Logger.Info("reenactment written",
		slog.String("output", result.OutputPath),
		slog.String("comparison", result.ComparisonPath),
		slog.Int("frames", result.Frames),
	)
	return nil
}
