package data

import (
	"fmt"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
)

// IService is the run catalog. Implementations are safe for concurrent use.
type IService interface {
	NewRun(run model.RunRecord) error
	// RetrieveRuns returns the newest runs first. An empty capability matches all.
	RetrieveRuns(capability model.Capability, max int) ([]model.RunRecord, error)
	NewError(err interface{}) error
	NewBatchStats(stats model.BatchStats) error
	Close() error
}

// New picks the store named by config and adds the journal when one is configured.
func New(cfgSvc config.IService) (IService, error) {
	var svc IService
	switch cfgSvc.GetDataStore() {
	case "files":
		svc = NewFilesDB(cfgSvc)
	case "sqlite":
		db, err := NewSQLite(cfgSvc.GetSQLitePath())
		if err != nil {
			return nil, err
		}
		svc = db
	default:
		return nil, fmt.Errorf("unknown data store %q", cfgSvc.GetDataStore())
	}

	if file := cfgSvc.GetJournalFile(); file != "" {
		svc = NewJournal(svc, file)
	}
	return svc, nil
}
