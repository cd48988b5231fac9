package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/facekit/mode"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/service/config"
	"github.com/khaledhikmat/facekit/service/data"
	"github.com/khaledhikmat/facekit/service/lgr"
	"github.com/khaledhikmat/facekit/service/publisher"
	"github.com/khaledhikmat/facekit/service/storage"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"models":    mode.Models,
	"detect":    mode.Detect,
	"deepfake":  mode.Deepfake,
	"reenact":   mode.Reenact,
	"landmarks": mode.Landmarks,
	"serve":     mode.Serve,
}

func main() {
	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			lgr.Logger.Error("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
			os.Exit(1)
		}
	}
	lgr.Init()

	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	modeType := "models"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
		args = args[1:]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		os.Exit(2)
	}

	// Create the services needed for the mode processor
	cfgSvc := config.NewEnv()

	dataSvc, err := data.New(cfgSvc)
	if err != nil {
		lgr.Logger.Error("failed to open data store", slog.Any("error", xerrors.New(err.Error())))
		os.Exit(1)
	}
	defer dataSvc.Close()

	publisherSvc, err := publisher.New(cfgSvc.GetMQTTBroker(),
		cfgSvc.GetMQTTUsername(),
		cfgSvc.GetMQTTPassword(),
		cfgSvc.GetMQTTTopicPrefix())
	if err != nil {
		lgr.Logger.Error("failed to connect publisher", slog.Any("error", xerrors.New(err.Error())))
		os.Exit(1)
	}
	defer publisherSvc.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      dataSvc,
		StorageSvc:   storage.NewFiles(),
		PublisherSvc: publisherSvc,
	}

	modeProcResult := make(chan error, 1)
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, args)
	}()

	var procErr error
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"facekit context cancelled",
		)

		// Give the mode processor a chance to report as it exits
		timer := time.NewTimer(waitOnShutdown)
		defer timer.Stop()
		select {
		case procErr = <-modeProcResult:
		case <-timer.C:
			lgr.Logger.Info(
				"facekit shutdown waiting period expired. Exiting now",
				slog.Duration("period", waitOnShutdown),
			)
		}

	case procErr = <-modeProcResult:
	}

	if procErr != nil {
		lgr.Logger.Error(
			"facekit mode processor failed",
			slog.String("mode", modeType),
			slog.Any("error", xerrors.New(procErr.Error())),
		)
		dataSvc.Close()
		publisherSvc.Close()
		os.Exit(1)
	}
}
