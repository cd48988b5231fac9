package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/khaledhikmat/facekit/deepfake"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/lgr"
)

const (
	EnsembleBackend    = "ensemble"
	EnsembleThreshold  = 0.5
	EnsembleResultFile = "pipeline_result.json"
	weightTolerance    = 0.001
)

// EnsembleResult is the weighted verdict plus what each member said.
type EnsembleResult struct {
	model.Classification
	Weights map[string]float64 `json:"weights"`
	Members map[string]float64 `json:"members"`
}

type EnsembleOptions struct {
	// Weights maps a deepfake model key to its share of the vote.
	Weights      map[string]float64
	NumFrames    int
	SaveJSON     bool
	OutputFolder string
}

func DefaultEnsembleOptions() EnsembleOptions {
	return EnsembleOptions{
		Weights: map[string]float64{
			string(deepfake.ResNetInception): 0.5,
			string(deepfake.EfficientNet):    0.5,
		},
		NumFrames:    deepfake.DefaultNumFrames,
		SaveJSON:     true,
		OutputFolder: "output",
	}
}

// ValidateWeights checks that every key names a deepfake model and that the
// weights add up to one. It returns the keys in a stable order.
func ValidateWeights(weights map[string]float64) ([]string, error) {
	if len(weights) == 0 {
		return nil, &model.InvalidArgumentError{Argument: "weights", Reason: "at least one model is required"}
	}

	names := make([]string, 0, len(weights))
	var sum float64
	for name, w := range weights {
		if err := model.CheckModelName(name); err != nil {
			return nil, err
		}
		if w < 0 || math.IsNaN(w) {
			return nil, &model.InvalidArgumentError{Argument: "weights", Value: name, Reason: "weight must not be negative"}
		}
		names = append(names, name)
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, &model.InvalidArgumentError{Argument: "weights", Value: fmt.Sprintf("%g", sum), Reason: "weights must sum to 1.0"}
	}
	sort.Strings(names)
	return names, nil
}

// ParseWeights reads "model=weight" pairs.
func ParseWeights(pairs []string) (map[string]float64, error) {
	weights := map[string]float64{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, &model.InvalidArgumentError{Argument: "weights", Value: p, Reason: "expected model=weight"}
		}
		var w float64
		if _, err := fmt.Sscanf(value, "%g", &w); err != nil {
			return nil, &model.InvalidArgumentError{Argument: "weights", Value: p, Reason: "weight is not a number"}
		}
		weights[name] = w
	}
	return weights, nil
}

// DeepfakeEnsemble classifies mediaPath with every weighted model and
// combines their fake probabilities.
func DeepfakeEnsemble(ctx context.Context, svcs ServicesFactory, mediaPath string, opts EnsembleOptions) (*EnsembleResult, error) {
	ctx, span := tracer.Start(ctx, "DeepfakeEnsemble")
	defer span.End()
	span.SetAttributes(attribute.String("media", mediaPath))

	names, err := ValidateWeights(opts.Weights)
	if err != nil {
		return nil, err
	}
	if err := model.CheckInput(mediaPath); err != nil {
		return nil, err
	}
	if opts.SaveJSON && opts.OutputFolder == "" {
		return nil, &model.InvalidArgumentError{Argument: "output_folder", Reason: "required when save_json is set"}
	}

	// Members do not persist anything themselves
	memberOpts := deepfake.ClassifyOptions{NumFrames: opts.NumFrames}

	members := make(map[string]float64, len(names))
	var weighted float64
	for _, name := range names {
		classification, err := classifyOnce(ctx, svcs, name, mediaPath, memberOpts)
		if err != nil {
			return nil, err
		}
		members[name] = classification.FakeProbability
		weighted += opts.Weights[name] * classification.FakeProbability

		lgr.Logger.Debug("ensemble member",
			slog.String("model", name),
			slog.Float64("fake_probability", classification.FakeProbability),
		)
	}

	fakeProb := model.NormalizeConfidence(weighted)
	label, confidence := model.Verdict(fakeProb, EnsembleThreshold)
	result := &EnsembleResult{
		Classification: model.Classification{
			ID:              uuid.NewString(),
			Backend:         EnsembleBackend,
			Source:          mediaPath,
			Timestamp:       time.Now().UTC(),
			Label:           label,
			Confidence:      confidence,
			FakeProbability: fakeProb,
		},
		Weights: opts.Weights,
		Members: members,
	}
	svcs.record(model.RunFromClassification(&result.Classification))

	if opts.SaveJSON {
		path := filepath.Join(opts.OutputFolder, EnsembleResultFile)
		if err := svcs.Artifacts().WriteJSON(path, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func classifyOnce(ctx context.Context, svcs ServicesFactory, name, mediaPath string, opts deepfake.ClassifyOptions) (*model.Classification, error) {
	c, err := deepfake.Create(svcs.CfgSvc, name, svcs.classifierOptions()...)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.Classify(ctx, mediaPath, opts)
}
