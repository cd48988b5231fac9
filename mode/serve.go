package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/facekit/deepfake"
	"github.com/khaledhikmat/facekit/facedetection"
	"github.com/khaledhikmat/facekit/landmarks"
	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/pipeline"
	"github.com/khaledhikmat/facekit/reenactment"
	"github.com/khaledhikmat/facekit/service/hub"
	"github.com/khaledhikmat/facekit/service/lgr"
	"github.com/khaledhikmat/facekit/service/publisher"
)

const (
	uploadMemory = 32 << 20
	defaultRuns  = 50
)

// maxUploadSize caps a whole request body, every part included.
var maxUploadSize int64 = 256 << 20

type uploadTooLargeError struct {
	limit int64
}

func (e *uploadTooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds %d bytes", e.limit)
}

// Serve exposes the tasks over HTTP and streams finished runs to
// websocket clients on /ws.
func Serve(canxCtx context.Context, svcs pipeline.ServicesFactory, _ []string) error {
	hubSvc := hub.New()
	go hubSvc.Run()
	defer hubSvc.Close()

	if svcs.PublisherSvc == nil {
		svcs.PublisherSvc = hubSvc
	} else {
		svcs.PublisherSvc = publisher.NewFanout(svcs.PublisherSvc, hubSvc)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", svcs.CfgSvc.GetHTTPPort()),
		Handler:           newRouter(svcs, hubSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverResult := make(chan error, 1)
	go func() {
		lgr.Logger.Info("web app listening", slog.String("addr", server.Addr))
		serverResult <- server.ListenAndServe()
	}()

	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"web app context cancelled",
		)
	case err := <-serverResult:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	period := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), period)
	defer cancel()

	lgr.Logger.Info(
		"web app is waiting for requests to finish",
		slog.Duration("period", period),
	)
	if err := server.Shutdown(shutdownCtx); err != nil {
		lgr.Logger.Error("web app shutdown failed", slog.Any("error", xerrors.New(err.Error())))
		return err
	}
	return nil
}

func newRouter(svcs pipeline.ServicesFactory, hubSvc *hub.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/models", modelsHandler)
	mux.HandleFunc("/runs", runsHandler(svcs))
	mux.HandleFunc("/detect", detectHandler(svcs))
	mux.HandleFunc("/deepfake", deepfakeHandler(svcs))
	mux.HandleFunc("/reenact", reenactHandler(svcs))
	mux.HandleFunc("/landmarks", landmarksHandler(svcs))
	mux.Handle("/ws", hubSvc)
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func modelsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, AvailableModels())
}

func runsHandler(svcs pipeline.ServicesFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcs.DataSvc == nil {
			writeJSON(w, http.StatusOK, []model.RunRecord{})
			return
		}

		limit := defaultRuns
		if v := r.URL.Query().Get("max"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, &model.InvalidArgumentError{Argument: "max", Value: v, Reason: "must be a positive integer"})
				return
			}
			limit = n
		}

		runs, err := svcs.DataSvc.RetrieveRuns(model.Capability(r.URL.Query().Get("capability")), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// detectHandler takes a multipart "image" and an optional "model" field.
func detectHandler(svcs pipeline.ServicesFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := parseUploads(w, r); err != nil {
			writeError(w, err)
			return
		}
		path, err := saveUpload(svcs, r, "image")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(path)

		modelName := r.FormValue("model")
		if modelName == "" {
			modelName = string(facedetection.BlazeFace)
		}

		result, err := pipeline.Detect(r.Context(), svcs, modelName, path, facedetection.DetectOptions{})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// deepfakeHandler takes a multipart "media". A "model" field classifies with
// one model, repeated "weights" fields (model=weight) run the ensemble.
func deepfakeHandler(svcs pipeline.ServicesFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := parseUploads(w, r); err != nil {
			writeError(w, err)
			return
		}
		path, err := saveUpload(svcs, r, "media")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(path)

		if modelName := r.FormValue("model"); modelName != "" {
			result, err := pipeline.Classify(r.Context(), svcs, modelName, path, deepfake.ClassifyOptions{NumFrames: deepfake.DefaultNumFrames})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}

		opts := pipeline.DefaultEnsembleOptions()
		opts.SaveJSON = false
		if pairs := r.MultipartForm.Value["weights"]; len(pairs) > 0 {
			weights, err := pipeline.ParseWeights(pairs)
			if err != nil {
				writeError(w, err)
				return
			}
			opts.Weights = weights
		}

		result, err := pipeline.DeepfakeEnsemble(r.Context(), svcs, path, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// reenactHandler takes a multipart "source" image and "driving" video. The
// source must show a face. An optional "model" field picks the reenactor.
func reenactHandler(svcs pipeline.ServicesFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := parseUploads(w, r); err != nil {
			writeError(w, err)
			return
		}
		source, err := saveUpload(svcs, r, "source")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(source)
		driving, err := saveUpload(svcs, r, "driving")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(driving)

		reenactor := r.FormValue("model")
		if reenactor == "" {
			reenactor = string(reenactment.TPS)
		}
		opts := reenactment.DefaultReenactOptions()
		opts.OutputFolder = svcs.CfgSvc.GetOutputFolder()

		result, err := pipeline.DetectThenReenact(r.Context(), svcs, string(facedetection.BlazeFace), reenactor, source, driving, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// landmarksHandler takes a multipart "media" plus optional "model" and
// "frame_interval" fields. Nothing is persisted.
func landmarksHandler(svcs pipeline.ServicesFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := parseUploads(w, r); err != nil {
			writeError(w, err)
			return
		}
		path, err := saveUpload(svcs, r, "media")
		if err != nil {
			writeError(w, err)
			return
		}
		defer os.Remove(path)

		modelName := r.FormValue("model")
		if modelName == "" {
			modelName = string(landmarks.BlazeFace)
		}
		var opts landmarks.ExtractOptions
		if v := r.FormValue("frame_interval"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, &model.InvalidArgumentError{Argument: "frame_interval", Value: v, Reason: "must be an integer"})
				return
			}
			opts.FrameInterval = n
		}

		result, err := pipeline.ExtractLandmarks(r.Context(), svcs, modelName, path, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// parseUploads caps the body at maxUploadSize before any part is read.
func parseUploads(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &uploadTooLargeError{limit: maxUploadSize}
		}
		return &model.InvalidArgumentError{Argument: "body", Reason: err.Error()}
	}
	return nil
}

// saveUpload stores the uploaded file under the output folder, keeping its extension.
func saveUpload(svcs pipeline.ServicesFactory, r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", &model.InvalidArgumentError{Argument: field, Reason: "missing upload"}
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if model.KindOf(header.Filename) == model.MediaUnknown {
		return "", &model.InvalidArgumentError{Argument: field, Value: header.Filename, Reason: "unsupported media extension"}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", &model.InvalidArgumentError{Argument: field, Reason: err.Error()}
	}

	path := filepath.Join(svcs.CfgSvc.GetOutputFolder(), "uploads", uuid.NewString()+ext)
	if err := svcs.Artifacts().WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lgr.Logger.Error("failed to write response", slog.Any("error", xerrors.New(err.Error())))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		invalid     *model.InvalidArgumentError
		unsupported *model.UnsupportedModelError
		notFound    *model.InputNotFoundError
		tooLarge    *uploadTooLargeError
	)
	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &invalid), errors.As(err, &unsupported):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	}

	if status == http.StatusInternalServerError {
		lgr.Logger.Error("request failed", slog.Any("error", xerrors.New(err.Error())))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
