package model

import "time"

const (
	LabelReal = "REAL"
	LabelFake = "FAKE"
)

type FrameScore struct {
	Frame           int     `json:"frame"`
	FakeProbability float64 `json:"fake_probability"`
}

// Classification is the deepfake verdict for one image or video.
// Confidence is the probability of Label, not of FAKE.
type Classification struct {
	ID              string       `json:"id"`
	Backend         string       `json:"backend"`
	Source          string       `json:"source"`
	Timestamp       time.Time    `json:"timestamp"`
	Label           string       `json:"label"`
	Confidence      float64      `json:"confidence"`
	FakeProbability float64      `json:"fake_probability"`
	Frames          []FrameScore `json:"frames,omitempty"`
}

// Verdict turns a fake probability into a label and the label's confidence.
func Verdict(fakeProbability, threshold float64) (string, float64) {
	p := NormalizeConfidence(fakeProbability)
	if p >= threshold {
		return LabelFake, p
	}
	return LabelReal, 1 - p
}

type Reenactment struct {
	ID             string    `json:"id"`
	Backend        string    `json:"backend"`
	Source         string    `json:"source"`
	Driving        string    `json:"driving"`
	Timestamp      time.Time `json:"timestamp"`
	OutputPath     string    `json:"output_path"`
	ComparisonPath string    `json:"comparison_path,omitempty"`
	Frames         int       `json:"frames"`
}
