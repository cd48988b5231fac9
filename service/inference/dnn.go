package inference

import (
	"fmt"

	"gocv.io/x/gocv"
)

// dnnService runs a network through OpenCV's DNN module.
type dnnService struct {
	net  gocv.Net
	spec ModelSpec
}

func NewDNN(spec ModelSpec) (IService, error) {
	net := gocv.ReadNet(spec.Path, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to read network %s", spec.Path)
	}
	return &dnnService{
		net:  net,
		spec: spec,
	}, nil
}

func (svc *dnnService) Run(inputs []Tensor) ([]Tensor, error) {
	blobs := make([]gocv.Mat, 0, len(inputs))
	defer func() {
		for _, b := range blobs {
			b.Close()
		}
	}()

	for i, t := range inputs {
		sizes := make([]int, len(t.Shape))
		for d, s := range t.Shape {
			sizes[d] = int(s)
		}
		blob := gocv.NewMatWithSizes(sizes, gocv.MatTypeCV32F)
		blobs = append(blobs, blob)

		ptr, err := blob.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("failed to access input blob: %w", err)
		}
		if len(ptr) != len(t.Data) {
			return nil, fmt.Errorf("input %d expects %d values, got %d", i, len(ptr), len(t.Data))
		}
		copy(ptr, t.Data)

		name := ""
		if i < len(svc.spec.InputNames) {
			name = svc.spec.InputNames[i]
		}
		svc.net.SetInput(blob, name)
	}

	outs := svc.net.ForwardLayers(svc.spec.OutputNames)
	defer func() {
		for _, m := range outs {
			m.Close()
		}
	}()

	results := make([]Tensor, len(outs))
	for i, m := range outs {
		data, err := m.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("failed to read output %s: %w", svc.spec.OutputNames[i], err)
		}
		sizes := m.Size()
		shape := make([]int64, len(sizes))
		for d, s := range sizes {
			shape[d] = int64(s)
		}
		results[i] = Tensor{
			Name:  svc.spec.OutputNames[i],
			Shape: shape,
			Data:  append([]float32(nil), data...),
		}
	}
	return results, nil
}

func (svc *dnnService) Close() error {
	return svc.net.Close()
}
