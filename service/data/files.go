package data

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
)

type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) NewRun(run model.RunRecord) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	return newEntity(run, "runs", svc.CfgSvc)
}

func (svc *filesDBService) RetrieveRuns(capability model.Capability, max int) ([]model.RunRecord, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	runs, err := retrieveEntites[model.RunRecord]("runs", svc.CfgSvc)
	if err != nil {
		return nil, err
	}

	result := []model.RunRecord{}
	for _, run := range runs {
		if capability == "" || run.Capability == capability {
			result = append(result, run)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if max > 0 && len(result) > max {
		result = result[:max]
	}
	return result, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return newEntity(errorEntity(err), "errors", svc.CfgSvc)
}

func (svc *filesDBService) NewBatchStats(stats model.BatchStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "batch-stats", svc.CfgSvc)
}

func (svc *filesDBService) Close() error {
	return nil
}

type errorData struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

// errorEntity flattens a CustomError, or any plain error, into a storable row.
func errorEntity(err interface{}) errorData {
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		if !errors.As(e, &customErr) {
			customErr = model.CustomError{Processor: "N/A", Inner: e, Message: e.Error(), StackTrace: "N/A"}
		}
	default:
		customErr = model.CustomError{Processor: "N/A", Message: "unknown error", StackTrace: "N/A"}
	}

	inner := ""
	if customErr.Inner != nil {
		inner = customErr.Inner.Error()
	}
	return errorData{
		Timestamp:  time.Now().Unix(),
		Processor:  customErr.Processor,
		Inner:      inner,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}
}

func entityPath(filename string, cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetDataFolder(), filename+".json")
}

func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	entities, err := retrieveEntites[T](filename, cfgsvc)
	if err != nil {
		return err
	}

	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}

	output := entityPath(filename, cfgsvc)
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(output, data, 0644)
}

func retrieveEntites[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityPath(filename, cfgsvc))
	if errors.Is(err, os.ErrNotExist) {
		return entities, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}
