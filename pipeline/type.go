package pipeline

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/facekit/deepfake"
	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/landmarks"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/reenactment"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/data"
	"github.com/khaledhikmat/facekit/service/inference"
	"github.com/khaledhikmat/facekit/service/lgr"
	"github.com/khaledhikmat/facekit/service/publisher"
	"github.com/khaledhikmat/facekit/service/storage"
)

var tracer = otel.Tracer("github.com/khaledhikmat/facekit/pipeline")

// ServicesFactory carries what every pipeline needs. Only CfgSvc is required.
type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	StorageSvc   storage.IService
	PublisherSvc publisher.IService
	// Runtime overrides inference.Open for every model the pipelines create.
	Runtime inference.Opener
}

func (f ServicesFactory) detectorOptions() []facedetection.Option {
	var opts []facedetection.Option
	if f.Runtime != nil {
		opts = append(opts, facedetection.WithRuntime(f.Runtime))
	}
	if f.StorageSvc != nil {
		opts = append(opts, facedetection.WithStorage(f.StorageSvc))
	}
	return opts
}

func (f ServicesFactory) classifierOptions() []deepfake.Option {
	var opts []deepfake.Option
	if f.Runtime != nil {
		opts = append(opts, deepfake.WithRuntime(f.Runtime))
	}
	if f.StorageSvc != nil {
		opts = append(opts, deepfake.WithStorage(f.StorageSvc))
	}
	return opts
}

func (f ServicesFactory) reenactorOptions() []reenactment.Option {
	var opts []reenactment.Option
	if f.Runtime != nil {
		opts = append(opts, reenactment.WithRuntime(f.Runtime))
	}
	if f.StorageSvc != nil {
		opts = append(opts, reenactment.WithStorage(f.StorageSvc))
	}
	return opts
}

func (f ServicesFactory) extractorOptions() []landmarks.Option {
	var opts []landmarks.Option
	if f.Runtime != nil {
		opts = append(opts, landmarks.WithRuntime(f.Runtime))
	}
	if f.StorageSvc != nil {
		opts = append(opts, landmarks.WithStorage(f.StorageSvc))
	}
	return opts
}

// Artifacts returns the storage service, defaulting to plain files.
func (f ServicesFactory) Artifacts() storage.IService {
	if f.StorageSvc == nil {
		return storage.NewFiles()
	}
	return f.StorageSvc
}

// record catalogs and announces a finished run. Failures are logged, not returned.
func (f ServicesFactory) record(run model.RunRecord) {
	if f.DataSvc != nil {
		if err := f.DataSvc.NewRun(run); err != nil {
			lgr.Logger.Error("failed to record run",
				slog.String("id", run.ID),
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
	}
	if f.PublisherSvc != nil {
		if err := f.PublisherSvc.Publish(run); err != nil {
			lgr.Logger.Warn("failed to publish run",
				slog.String("id", run.ID),
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
	}
}

func (f ServicesFactory) recordError(err model.CustomError) {
	if f.DataSvc == nil {
		return
	}
	if dbErr := f.DataSvc.NewError(err); dbErr != nil {
		lgr.Logger.Error("failed to record error",
			slog.String("processor", err.Processor),
			slog.Any("error", xerrors.New(dbErr.Error())),
		)
	}
}
