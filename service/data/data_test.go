package data

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/config"
)

type testConfig struct {
	config.IService
	folder string
	store  string
}

func (c testConfig) GetDataFolder() string {
	return c.folder
}

func (c testConfig) GetDataStore() string {
	return c.store
}

func (c testConfig) GetSQLitePath() string {
	return filepath.Join(c.folder, "runs.db")
}

func (c testConfig) GetJournalFile() string {
	return ""
}

func newStores(t *testing.T) map[string]IService {
	t.Helper()

	stores := map[string]IService{}
	for _, kind := range []string{"files", "sqlite"} {
		svc, err := New(testConfig{IService: config.NewHardCoded(), folder: t.TempDir(), store: kind})
		if err != nil {
			t.Fatalf("failed to open %s store: %v", kind, err)
		}
		t.Cleanup(func() { svc.Close() })
		stores[kind] = svc
	}
	return stores
}

func TestRunsAreRetrievedNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	runs := []model.RunRecord{
		{ID: "a", Capability: model.CapabilityDetection, Backend: "blazeface", Source: "a.jpg", Subjects: 1, Confidence: 0.9, Timestamp: base},
		{ID: "b", Capability: model.CapabilityDeepfake, Backend: "efficientnet", Source: "b.mp4", Label: model.LabelFake, Confidence: 0.7, Timestamp: base.Add(time.Minute)},
		{ID: "c", Capability: model.CapabilityDetection, Backend: "ultralight", Source: "c.jpg", Subjects: 2, Confidence: 0.8, Timestamp: base.Add(2 * time.Minute)},
	}

	for kind, svc := range newStores(t) {
		t.Run(kind, func(t *testing.T) {
			for _, run := range runs {
				if err := svc.NewRun(run); err != nil {
					t.Fatalf("NewRun failed: %v", err)
				}
			}

			all, err := svc.RetrieveRuns("", 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
				t.Errorf("unexpected order %+v", all)
			}

			detections, err := svc.RetrieveRuns(model.CapabilityDetection, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(detections) != 1 || detections[0].ID != "c" {
				t.Errorf("unexpected filtered runs %+v", detections)
			}
			if !detections[0].Timestamp.Equal(runs[2].Timestamp) {
				t.Errorf("timestamp %v, want %v", detections[0].Timestamp, runs[2].Timestamp)
			}
		})
	}
}

func TestEmptyCatalog(t *testing.T) {
	for kind, svc := range newStores(t) {
		runs, err := svc.RetrieveRuns("", 10)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if runs == nil || len(runs) != 0 {
			t.Errorf("%s: expected an empty list, got %v", kind, runs)
		}
	}
}

func TestErrorsAndStatsAreRecorded(t *testing.T) {
	for kind, svc := range newStores(t) {
		custom := model.GenError("folder", errors.New("decode failed"), map[string]interface{}{"image": "x.png"}, "worker %d", 2)
		if err := svc.NewError(custom); err != nil {
			t.Errorf("%s: NewError(custom) failed: %v", kind, err)
		}
		if err := svc.NewError(errors.New("plain")); err != nil {
			t.Errorf("%s: NewError(plain) failed: %v", kind, err)
		}
		if err := svc.NewBatchStats(model.BatchStats{Name: "folder", Worker: 1, Backend: "blazeface", Images: 3}); err != nil {
			t.Errorf("%s: NewBatchStats failed: %v", kind, err)
		}
	}
}

func TestFilesDBErrorEntity(t *testing.T) {
	dir := t.TempDir()
	svc := NewFilesDB(testConfig{IService: config.NewHardCoded(), folder: dir, store: "files"})

	custom := model.GenError("folder", errors.New("decode failed"), nil, "image %s", "x.png")
	if err := svc.NewError(custom); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "errors.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rows []errorData
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Processor != "folder" || rows[0].Inner != "decode failed" || rows[0].Message != "image x.png" {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestJournalAppendsRuns(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "journal.log")
	svc := NewJournal(NewFilesDB(testConfig{IService: config.NewHardCoded(), folder: dir, store: "files"}), file)

	for _, id := range []string{"r1", "r2"} {
		if err := svc.NewRun(model.RunRecord{ID: id, Capability: model.CapabilityReenactment, Backend: "tps"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var run model.RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &run); err != nil {
			t.Fatalf("bad journal line %q: %v", scanner.Text(), err)
		}
		if run.Timestamp.IsZero() {
			t.Errorf("journal line without timestamp")
		}
		ids = append(ids, run.ID)
	}
	if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
		t.Errorf("journal ids %v", ids)
	}
}

func TestUnknownStore(t *testing.T) {
	if _, err := New(testConfig{IService: config.NewHardCoded(), folder: t.TempDir(), store: "mongo"}); err == nil {
		t.Fatal("expected an error for an unknown store")
	}
}
