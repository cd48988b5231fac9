package inference

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// FrameTensor resizes a BGR frame to w x h, converts it to RGB and maps every
// byte v to (v-mean)*scale. The result is NCHW when nchw is set, NHWC otherwise.
func FrameTensor(frame gocv.Mat, w, h int, mean, scale float32, nchw bool) (Tensor, error) {
	if frame.Empty() || frame.Channels() != 3 {
		return Tensor{}, fmt.Errorf("expected a 3 channel frame")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	pixels := rgb.ToBytes()
	if len(pixels) != w*h*3 {
		return Tensor{}, fmt.Errorf("unexpected frame size %d", len(pixels))
	}

	data := make([]float32, w*h*3)
	plane := w * h
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			v := (float32(pixels[i*3+c]) - mean) * scale
			if nchw {
				data[c*plane+i] = v
			} else {
				data[i*3+c] = v
			}
		}
	}

	shape := []int64{1, int64(h), int64(w), 3}
	if nchw {
		shape = []int64{1, 3, int64(h), int64(w)}
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// TensorFrame turns an NCHW RGB tensor with values in [0, 1] back into a BGR frame.
func TensorFrame(t Tensor) (gocv.Mat, error) {
	if len(t.Shape) != 4 || t.Shape[1] != 3 {
		return gocv.NewMat(), fmt.Errorf("expected [1,3,H,W], got %v", t.Shape)
	}
	h, w := int(t.Shape[2]), int(t.Shape[3])
	plane := w * h
	if len(t.Data) != 3*plane {
		return gocv.NewMat(), fmt.Errorf("tensor has %d values, want %d", len(t.Data), 3*plane)
	}

	pixels := make([]byte, 3*plane)
	for i := 0; i < plane; i++ {
		// BGR order for OpenCV
		for c := 0; c < 3; c++ {
			v := t.Data[(2-c)*plane+i] * 255
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			pixels[i*3+c] = byte(v + 0.5)
		}
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, pixels)
}
