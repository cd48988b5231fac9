package mode

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/service/data"
	"github.com/khaledhikmat/facekit/service/lgr"
)

// Processor runs one mode. args are the command line arguments after the mode name.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error

// UsageError is returned when a mode gets the wrong arguments.
type UsageError struct {
	Mode  string
	Usage string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: facekit %s %s", e.Mode, e.Usage)
}

func procError(datasvc data.IService, err interface{}) {
	if datasvc == nil {
		return
	}
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}

// reportFailure records a failed mode run and passes the error through.
func reportFailure(svcs pipeline.ServicesFactory, proc string, err error, misc map[string]interface{}) error {
	procError(svcs.DataSvc, model.GenError(proc, err, misc, "%s failed", proc))
	return err
}

func outputStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
