package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
)

type filesService struct{}

func NewFiles() IService {
	return &filesService{}
}

func (svc *filesService) WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	return svc.WriteFile(path, data)
}

// WriteImage encodes img in the raster format implied by the path extension.
func (svc *filesService) WriteImage(path string, img gocv.Mat) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return &model.PersistenceError{Path: path, Err: fmt.Errorf("missing image extension")}
	}

	buf, err := gocv.IMEncode(gocv.FileExt(ext), img)
	if err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return svc.WriteFile(path, data)
}

func (svc *filesService) WriteCSV(path string, header []string, rows [][]string) error {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	if err := w.Write(header); err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	if err := w.WriteAll(rows); err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	return svc.WriteFile(path, b.Bytes())
}

func (svc *filesService) WriteFile(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	return nil
}

func (svc *filesService) StoreFile(tempPath, finalPath string) (string, error) {
	if err := ensureDir(finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", err
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", &model.PersistenceError{Path: finalPath, Err: err}
	}
	return finalPath, nil
}

// TempPath keeps the extension so encoders that sniff it still work.
func (svc *filesService) TempPath(finalPath string) (string, error) {
	if err := ensureDir(finalPath); err != nil {
		return "", err
	}
	dir, base := filepath.Split(finalPath)
	ext := filepath.Ext(base)
	name := fmt.Sprintf(".%s.%s.tmp%s", strings.TrimSuffix(base, ext), uuid.NewString()[:8], ext)
	return filepath.Join(dir, name), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &model.PersistenceError{Path: path, Err: err}
	}
	return nil
}
