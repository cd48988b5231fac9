package data

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"

	"github.com/khaledhikmat/facekit/model"
)

// journalService appends every run as a JSON line to a rolling file and
// forwards all calls to the wrapped store.
type journalService struct {
	IService
	mu  sync.Mutex
	out *lumberjack.Logger
}

func NewJournal(inner IService, file string) IService {
	return &journalService{
		IService: inner,
		out: &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		},
	}
}

func (svc *journalService) NewRun(run model.RunRecord) error {
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	if err := svc.IService.NewRun(run); err != nil {
		return err
	}

	line, err := json.Marshal(run)
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, err = svc.out.Write(append(line, '\n'))
	return err
}

func (svc *journalService) Close() error {
	err := svc.IService.Close()
	if outErr := svc.out.Close(); err == nil {
		err = outErr
	}
	return err
}
