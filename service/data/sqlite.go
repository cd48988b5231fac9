package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/khaledhikmat/facekit/model"
)

type sqliteService struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// NewSQLite opens (and migrates) the catalog at dbPath.
func NewSQLite(dbPath string) (IService, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database folder: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	svc := &sqliteService{conn: conn}
	if err := svc.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return svc, nil
}

func (svc *sqliteService) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		capability TEXT NOT NULL,
		backend TEXT NOT NULL,
		source TEXT NOT NULL,
		subjects INTEGER DEFAULT 0,
		label TEXT DEFAULT '',
		confidence REAL DEFAULT 0,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		processor TEXT NOT NULL,
		inner_error TEXT DEFAULT '',
		message TEXT DEFAULT '',
		stack_trace TEXT DEFAULT '',
		misc TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS batch_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		worker INTEGER DEFAULT 0,
		backend TEXT NOT NULL,
		images INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		uptime INTEGER DEFAULT 0,
		avg_proc_time REAL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_capability ON runs(capability);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	`

	_, err := svc.conn.Exec(schema)
	return err
}

func (svc *sqliteService) NewRun(run model.RunRecord) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	_, err := svc.conn.Exec(`
		INSERT INTO runs (id, capability, backend, source, subjects, label, confidence, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Capability), run.Backend, run.Source, run.Subjects, run.Label, run.Confidence, run.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (svc *sqliteService) RetrieveRuns(capability model.Capability, max int) ([]model.RunRecord, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	if max <= 0 {
		max = -1
	}
	rows, err := svc.conn.Query(`
		SELECT id, capability, backend, source, subjects, label, confidence, timestamp
		FROM runs WHERE (? = '' OR capability = ?)
		ORDER BY timestamp DESC LIMIT ?
	`, string(capability), string(capability), max)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		var run model.RunRecord
		var capability string
		if err := rows.Scan(&run.ID, &capability, &run.Backend, &run.Source, &run.Subjects, &run.Label, &run.Confidence, &run.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Capability = model.Capability(capability)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (svc *sqliteService) NewError(err interface{}) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	e := errorEntity(err)
	misc, _ := json.Marshal(e.Misc)
	_, dbErr := svc.conn.Exec(`
		INSERT INTO errors (timestamp, processor, inner_error, message, stack_trace, misc)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.Processor, e.Inner, e.Message, e.StackTrace, string(misc))
	if dbErr != nil {
		return fmt.Errorf("failed to insert error: %w", dbErr)
	}
	return nil
}

func (svc *sqliteService) NewBatchStats(stats model.BatchStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	stats.Timestamp = time.Now().Unix()
	_, err := svc.conn.Exec(`
		INSERT INTO batch_stats (name, worker, backend, images, errors, uptime, avg_proc_time, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, stats.Name, stats.Worker, stats.Backend, stats.Images, stats.Errors, stats.Uptime, stats.AvgProcTime, stats.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert batch stats: %w", err)
	}
	return nil
}

func (svc *sqliteService) Close() error {
	return svc.conn.Close()
}
