package model

import "time"

// FaceLandmarks is the keypoint set of one face.
type FaceLandmarks struct {
	FaceID       int     `json:"face_id"`
	NumLandmarks int     `json:"num_landmarks"`
	Points       []Point `json:"points"`
}

type LandmarkFrame struct {
	FrameNumber int             `json:"frame_number"`
	NumFaces    int             `json:"num_faces"`
	Landmarks   []FaceLandmarks `json:"landmarks"`
}

// LandmarkResult holds a single frame for an image and one frame per
// sampled frame for a video. FrameNumber is the index in the source video.
type LandmarkResult struct {
	ID            string          `json:"id"`
	Backend       string          `json:"backend"`
	Source        string          `json:"source"`
	Video         bool            `json:"video"`
	Timestamp     time.Time       `json:"timestamp"`
	Frames        []LandmarkFrame `json:"frames"`
	AnnotatedPath string          `json:"annotated_path,omitempty"`
}

// ImageLandmarks is the JSON artifact of an image extraction.
type ImageLandmarks struct {
	ImagePath string          `json:"image_path"`
	NumFaces  int             `json:"num_faces"`
	Landmarks []FaceLandmarks `json:"landmarks"`
}

// VideoLandmarks is the JSON artifact of a video extraction.
type VideoLandmarks struct {
	VideoPath string          `json:"video_path"`
	NumFrames int             `json:"num_frames"`
	Frames    []LandmarkFrame `json:"frames"`
}

// NewLandmarkFrame keeps the keypoints of faces, numbering them in order.
// Faces without keypoints still count so face ids match the detections.
func NewLandmarkFrame(number int, faces []Detection) LandmarkFrame {
	frame := LandmarkFrame{
		FrameNumber: number,
		NumFaces:    len(faces),
		Landmarks:   make([]FaceLandmarks, len(faces)),
	}
	for i, f := range faces {
		points := append([]Point{}, f.Landmarks...)
		frame.Landmarks[i] = FaceLandmarks{FaceID: i, NumLandmarks: len(points), Points: points}
	}
	return frame
}

// Faces counts faces over every frame.
func (r *LandmarkResult) Faces() int {
	n := 0
	for _, f := range r.Frames {
		n += f.NumFaces
	}
	return n
}

// Document is what the JSON artifact of r contains.
func (r *LandmarkResult) Document() interface{} {
	if r.Video {
		return VideoLandmarks{VideoPath: r.Source, NumFrames: len(r.Frames), Frames: r.Frames}
	}

	doc := ImageLandmarks{ImagePath: r.Source, Landmarks: []FaceLandmarks{}}
	if len(r.Frames) > 0 {
		doc.NumFaces = r.Frames[0].NumFaces
		doc.Landmarks = r.Frames[0].Landmarks
	}
	return doc
}
