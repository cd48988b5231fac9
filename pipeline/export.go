package pipeline

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/khaledhikmat/facekit/model"
)

var folderCSVHeader = []string{"image_name", "x1", "y1", "x2", "y2", "confidence"}

func WriteFolderCSV(svcs ServicesFactory, csvPath string, detections []model.FolderDetection) error {
	rows := make([][]string, len(detections))
	for i, d := range detections {
		rows[i] = []string{
			d.ImageName,
			formatFloat(d.X1),
			formatFloat(d.Y1),
			formatFloat(d.X2),
			formatFloat(d.Y2),
			formatFloat(d.Confidence),
		}
	}
	return svcs.Artifacts().WriteCSV(csvPath, folderCSVHeader, rows)
}

// JSONToCSV converts a folder batch JSON file into CSV.
func JSONToCSV(svcs ServicesFactory, jsonPath, csvPath string) error {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return &model.InputNotFoundError{Path: jsonPath}
	}

	var detections []model.FolderDetection
	if err := json.Unmarshal(data, &detections); err != nil {
		return &model.InvalidArgumentError{Argument: "json_path", Value: jsonPath, Reason: err.Error()}
	}
	return WriteFolderCSV(svcs, csvPath, detections)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
