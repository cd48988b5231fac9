package mode

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/khaledhikmat/facekit/deepfake"
	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/landmarks"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/reenactment"
)

// AvailableModels lists every registry key per capability.
func AvailableModels() map[model.Capability][]string {
	return map[model.Capability][]string{
		model.CapabilityDetection:   facedetection.ListAvailableModels(),
		model.CapabilityReenactment: reenactment.ListAvailableModels(),
		model.CapabilityDeepfake:    deepfake.ListAvailableModels(),
		model.CapabilityLandmarks:   landmarks.ListAvailableModels(),
	}
}

func Models(_ context.Context, _ pipeline.ServicesFactory, _ []string) error {
	return printModels(os.Stdout)
}

func printModels(w io.Writer) error {
	all := AvailableModels()
	for _, c := range []model.Capability{model.CapabilityDetection, model.CapabilityReenactment, model.CapabilityDeepfake, model.CapabilityLandmarks} {
		if _, err := fmt.Fprintf(w, "%-12s %s\n", c, strings.Join(all[c], ", ")); err != nil {
			return err
		}
	}
	return nil
}
