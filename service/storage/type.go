package storage

import "gocv.io/x/gocv"

// IService persists artifacts. Every write lands atomically: readers see
// either the previous file or the complete new one.
type IService interface {
	WriteJSON(path string, v interface{}) error
	WriteImage(path string, img gocv.Mat) error
	WriteCSV(path string, header []string, rows [][]string) error
	WriteFile(path string, data []byte) error
	// StoreFile moves a finished temp file to its final path.
	StoreFile(tempPath, finalPath string) (string, error)
	// TempPath returns a unique scratch path next to finalPath.
	TempPath(finalPath string) (string, error)
}
