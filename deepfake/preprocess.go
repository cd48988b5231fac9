package deepfake

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"

	"github.com/khaledhikmat/facekit/service/inference"
)

var (
	unitMean = [3]float32{0, 0, 0}
	unitStd  = [3]float32{1, 1, 1}

	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// imageTensor resizes img to size x size and lays it out as NCHW RGB,
// each channel scaled to [0, 1] then normalized by mean and std.
func imageTensor(img image.Image, size int, mean, std [3]float32) inference.Tensor {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	bounds := resized.Bounds()

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*size + x
			data[i] = (float32(r>>8)/255 - mean[0]) / std[0]
			data[plane+i] = (float32(g>>8)/255 - mean[1]) / std[1]
			data[2*plane+i] = (float32(b>>8)/255 - mean[2]) / std[2]
		}
	}

	return inference.Tensor{
		Name:  "input",
		Shape: []int64{1, 3, int64(size), int64(size)},
		Data:  data,
	}
}

// fakeProbability reads a single logit (sigmoid) or a [real, fake] pair (softmax).
func fakeProbability(outputs []inference.Tensor) (float64, error) {
	if len(outputs) == 0 {
		return 0, fmt.Errorf("model returned no outputs")
	}

	out := outputs[0].Data
	switch len(out) {
	case 1:
		return 1.0 / (1.0 + math.Exp(-float64(out[0]))), nil
	case 2:
		m := math.Max(float64(out[0]), float64(out[1]))
		pReal := math.Exp(float64(out[0]) - m)
		pFake := math.Exp(float64(out[1]) - m)
		return pFake / (pReal + pFake), nil
	}
	return 0, fmt.Errorf("unexpected output with %d values", len(out))
}
