package facedetection

import (
	"fmt"
	"math"

	"github.com/khaledhikmat/facekit/model"
	"github.com/khaledhikmat/facekit/service/inference"
)

// anchor centers are normalized to the model input.
type anchor struct {
	cx, cy float64
}

// ssdAnchors generates the fixed-size anchors of the BlazeFace family.
// Consecutive layers with the same stride share one grid, two anchors per layer.
func ssdAnchors(inputSize int, strides []int) []anchor {
	var anchors []anchor
	for layer := 0; layer < len(strides); {
		stride := strides[layer]
		last := layer
		for last < len(strides) && strides[last] == stride {
			last++
		}
		perCell := 2 * (last - layer)
		grid := int(math.Ceil(float64(inputSize) / float64(stride)))

		for y := 0; y < grid; y++ {
			for x := 0; x < grid; x++ {
				for a := 0; a < perCell; a++ {
					anchors = append(anchors, anchor{
						cx: (float64(x) + 0.5) / float64(grid),
						cy: (float64(y) + 0.5) / float64(grid),
					})
				}
			}
		}
		layer = last
	}
	return anchors
}

// ssdDecoder turns regressors [1,N,4+2K] and classificators [1,N,1] into faces.
type ssdDecoder struct {
	anchors      []anchor
	inputSize    float64
	keypoints    int
	threshold    float64
	nmsThreshold float64
}

func newSSDDecoder(inputSize, keypoints int, threshold, nmsThreshold float64) ssdDecoder {
	return ssdDecoder{
		anchors:      ssdAnchors(inputSize, []int{8, 16, 16, 16}),
		inputSize:    float64(inputSize),
		keypoints:    keypoints,
		threshold:    threshold,
		nmsThreshold: nmsThreshold,
	}
}

func (d ssdDecoder) values() int {
	return 4 + 2*d.keypoints
}

func (d ssdDecoder) decode(outputs []inference.Tensor, width, height int) ([]model.Detection, error) {
	n := len(d.anchors)
	var regressors, scores []float32
	for _, t := range outputs {
		switch len(t.Data) {
		case n * d.values():
			regressors = t.Data
		case n:
			scores = t.Data
		}
	}
	if regressors == nil || scores == nil {
		return nil, fmt.Errorf("unexpected outputs: want regressors [1,%d,%d] and scores [1,%d,1]", n, d.values(), n)
	}

	w, h := float64(width), float64(height)
	stride := d.values()
	var faces []model.Detection
	for i, a := range d.anchors {
		score := sigmoid(clip(float64(scores[i]), -100, 100))
		if score < d.threshold {
			continue
		}

		r := regressors[i*stride : (i+1)*stride]
		cx := float64(r[0])/d.inputSize + a.cx
		cy := float64(r[1])/d.inputSize + a.cy
		bw := float64(r[2]) / d.inputSize
		bh := float64(r[3]) / d.inputSize

		landmarks := make([]model.Point, d.keypoints)
		for k := range landmarks {
			landmarks[k] = model.Point{
				X: (float64(r[4+2*k])/d.inputSize + a.cx) * w,
				Y: (float64(r[4+2*k+1])/d.inputSize + a.cy) * h,
			}
		}

		faces = append(faces, model.Detection{
			BoundingBox: model.BoxFromCorners((cx-bw/2)*w, (cy-bh/2)*h, (cx+bw/2)*w, (cy+bh/2)*h),
			Confidence:  score,
			Landmarks:   landmarks,
		})
	}

	return nms(faces, d.nmsThreshold), nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clip(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
