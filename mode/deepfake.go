package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/service/lgr"
)

// Deepfake classifies a media file with a weighted ensemble.
// Without weights both models vote equally.
func Deepfake(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) < 1 {
		return &UsageError{Mode: "deepfake", Usage: "<media> [model=weight ...]"}
	}
	media := args[0]

	opts := pipeline.DefaultEnsembleOptions()
	opts.OutputFolder = svcs.CfgSvc.GetOutputFolder()
	if len(args) > 1 {
		weights, err := pipeline.ParseWeights(args[1:])
		if err != nil {
			return err
		}
		opts.Weights = weights
	}

	result, err := pipeline.DeepfakeEnsemble(canxCtx, svcs, media, opts)
	if err != nil {
		return reportFailure(svcs, "deepfake", err, map[string]interface{}{"media": media})
	}

	attrs := []any{
		slog.String("media", media),
		slog.String("label", result.Label),
		slog.Float64("confidence", result.Confidence),
		slog.Float64("fake_probability", result.FakeProbability),
	}
	for name, p := range result.Members {
		attrs = append(attrs, slog.Float64(name, p))
	}
	lgr.Logger.Info("media classified", attrs...)
	return nil
}
