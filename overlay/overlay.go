// Package overlay renders results onto frames before they are persisted.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/khaledhikmat/facekit/model"
)

var (
	green = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	red   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

// DrawDetections draws each face box, its landmarks and its confidence.
func DrawDetections(mat *gocv.Mat, faces []model.Detection) error {
	for _, face := range faces {
		b := face.BoundingBox
		rect := image.Rect(int(b.X), int(b.Y), int(b.X2()), int(b.Y2()))
		if err := gocv.Rectangle(mat, rect, green, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %v", err)
		}

		for _, p := range face.Landmarks {
			if err := gocv.Circle(mat, image.Pt(int(p.X), int(p.Y)), 2, red, -1); err != nil {
				return fmt.Errorf("failed to draw landmark: %v", err)
			}
		}

		pt := image.Pt(int(b.X), int(b.Y)-10)
		if err := gocv.PutText(mat, fmt.Sprintf("%.2f", face.Confidence), pt, gocv.FontHersheySimplex, 0.5, green, 2); err != nil {
			return fmt.Errorf("failed to draw text: %v", err)
		}
	}
	return nil
}

// DrawLandmarks marks every keypoint with a filled dot.
func DrawLandmarks(mat *gocv.Mat, faces []model.FaceLandmarks) error {
	for _, face := range faces {
		for _, p := range face.Points {
			if err := gocv.Circle(mat, image.Pt(int(p.X), int(p.Y)), 2, green, -1); err != nil {
				return fmt.Errorf("failed to draw landmark: %v", err)
			}
		}
	}
	return nil
}

// DrawLabel writes a verdict banner in the top-left corner.
func DrawLabel(mat *gocv.Mat, label string, confidence float64) error {
	c := green
	if label == model.LabelFake {
		c = red
	}

	text := fmt.Sprintf("%s %.2f", label, confidence)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.8, 2)
	banner := image.Rect(0, 0, size.X+20, size.Y+20)
	if err := gocv.Rectangle(mat, banner, c, -1); err != nil {
		return fmt.Errorf("failed to draw banner: %v", err)
	}
	if err := gocv.PutText(mat, text, image.Pt(10, size.Y+10), gocv.FontHersheySimplex, 0.8, white, 2); err != nil {
		return fmt.Errorf("failed to draw text: %v", err)
	}
	return nil
}

// SideBySide resizes every frame to w x h and concatenates them left to right.
func SideBySide(frames []gocv.Mat, w, h int) (gocv.Mat, error) {
	out := gocv.NewMat()
	if len(frames) == 0 {
		return out, fmt.Errorf("no frames to join")
	}

	resized := make([]gocv.Mat, 0, len(frames))
	defer func() {
		for _, m := range resized {
			m.Close()
		}
	}()
	for _, f := range frames {
		r := gocv.NewMat()
		gocv.Resize(f, &r, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
		resized = append(resized, r)
	}

	resized[0].CopyTo(&out)
	for _, r := range resized[1:] {
		next := gocv.NewMat()
		gocv.Hconcat(out, r, &next)
		out.Close()
		out = next
	}
	return out, nil
}
