package facedetection

import (
	"sort"

	"github.com/khaledhikmat/facekit/model"
)

// nms performs Non-Maximum Suppression on detected faces
func nms(faces []model.Detection, iouThreshold float64) []model.Detection {
	if len(faces) == 0 {
		return []model.Detection{}
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Confidence > faces[j].Confidence
	})

	keep := make([]bool, len(faces))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(faces); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if keep[j] && faces[i].BoundingBox.IoU(faces[j].BoundingBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]model.Detection, 0, len(faces))
	for i, face := range faces {
		if keep[i] {
			result = append(result, face)
		}
	}
	return result
}
