package deepfake

import (
	"context"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// sampleIndices spreads n indices evenly over [0, total-1], first and last included.
func sampleIndices(total, n int) []int {
	if total <= 0 || n <= 0 {
		return nil
	}
	if n >= total {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if n == 1 {
		return []int{0}
	}

	idx := make([]int, n)
	step := float64(total-1) / float64(n-1)
	for i := range idx {
		idx[i] = int(math.Floor(float64(i) * step))
	}
	return idx
}

// visitFrames decodes the sampled frames of a video and hands each one to fn.
func visitFrames(ctx context.Context, path string, n int, fn func(index int, frame gocv.Mat) error) (int, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return 0, fmt.Errorf("cannot open video %s: %w", path, err)
	}
	defer vc.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	total := int(vc.Get(gocv.VideoCaptureFrameCount))
	visited := 0

	// Without a frame count, take the first n frames in order
	if total <= 0 {
		for visited < n {
			if err := ctx.Err(); err != nil {
				return visited, err
			}
			if ok := vc.Read(&frame); !ok || frame.Empty() {
				break
			}
			if err := fn(visited, frame); err != nil {
				return visited, err
			}
			visited++
		}
		return visited, nil
	}

	for _, idx := range sampleIndices(total, n) {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		vc.Set(gocv.VideoCapturePosFrames, float64(idx))
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			continue
		}
		if err := fn(idx, frame); err != nil {
			return visited, err
		}
		visited++
	}
	return visited, nil
}

func matImage(frame gocv.Mat) (image.Image, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("cannot convert frame: %w", err)
	}
	return img, nil
}
