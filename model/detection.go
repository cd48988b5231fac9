package model

import (
	"math"
	"time"
)

// Point is a 2D location in image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned box given by its top-left corner and size.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoxFromCorners builds a box from top-left and bottom-right corners.
func BoxFromCorners(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (b BoundingBox) X2() float64 {
	return b.X + b.Width
}

func (b BoundingBox) Y2() float64 {
	return b.Y + b.Height
}

func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// IoU calculates Intersection over Union of two boxes
func (b BoundingBox) IoU(o BoundingBox) float64 {
	x1 := math.Max(b.X, o.X)
	y1 := math.Max(b.Y, o.Y)
	x2 := math.Min(b.X2(), o.X2())
	y2 := math.Min(b.Y2(), o.Y2())
	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Clamp limits the box to a width x height image.
func (b BoundingBox) Clamp(width, height float64) BoundingBox {
	x1 := clamp(b.X, 0, width)
	y1 := clamp(b.Y, 0, height)
	x2 := clamp(b.X2(), 0, width)
	y2 := clamp(b.Y2(), 0, height)
	return BoxFromCorners(x1, y1, x2, y2)
}

// Inside reports whether the box lies fully within a width x height image.
func (b BoundingBox) Inside(width, height float64) bool {
	return b.X >= 0 && b.Y >= 0 && b.X2() <= width && b.Y2() <= height
}

// Detection is one located face.
type Detection struct {
	BoundingBox BoundingBox       `json:"bounding_box"`
	Confidence  float64           `json:"confidence"`
	Landmarks   []Point           `json:"landmarks,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DetectionResult is what a detector returns for one image.
// Faces is also the exact content of the JSON artifact.
type DetectionResult struct {
	ID        string      `json:"id"`
	Backend   string      `json:"backend"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Faces     []Detection `json:"faces"`
}

// Largest returns the face with the biggest box, or false when there is none.
func (r *DetectionResult) Largest() (Detection, bool) {
	if r == nil || len(r.Faces) == 0 {
		return Detection{}, false
	}
	best := r.Faces[0]
	for _, f := range r.Faces[1:] {
		if f.BoundingBox.Area() > best.BoundingBox.Area() {
			best = f
		}
	}
	return best, true
}

// FolderDetection is the flattened record used by folder batches.
type FolderDetection struct {
	ImageName  string  `json:"image_name"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

type FolderFailure struct {
	ImageName string `json:"image_name"`
	Error     string `json:"error"`
}

type FolderResult struct {
	Detections []FolderDetection `json:"detections"`
	Failures   []FolderFailure   `json:"failures,omitempty"`
}

// NormalizeConfidence maps any raw score onto [0, 1]; NaN becomes 0.
func NormalizeConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clamp(v, 0, 1)
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
