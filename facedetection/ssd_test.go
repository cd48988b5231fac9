package facedetection

import (
	"testing"

	"github.com/khaledhikmat/facekit/model"
)

func TestSSDAnchors(t *testing.T) {
	anchors := ssdAnchors(128, []int{8, 16, 16, 16})
	if len(anchors) != 896 {
		t.Fatalf("expected 896 anchors, got %d", len(anchors))
	}
	if anchors[0].cx != 0.5/16 || anchors[0].cy != 0.5/16 {
		t.Errorf("first anchor at %+v", anchors[0])
	}
	if last := anchors[895]; last.cx != 7.5/8 || last.cy != 7.5/8 {
		t.Errorf("last anchor at %+v", last)
	}
}

func TestNMS(t *testing.T) {
	faces := []model.Detection{
		{BoundingBox: model.BoundingBox{X: 10, Y: 10, Width: 50, Height: 50}, Confidence: 0.7},
		{BoundingBox: model.BoundingBox{X: 12, Y: 12, Width: 50, Height: 50}, Confidence: 0.9},
		{BoundingBox: model.BoundingBox{X: 200, Y: 200, Width: 40, Height: 40}, Confidence: 0.8},
	}

	kept := nms(faces, 0.3)
	if len(kept) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 || kept[1].Confidence != 0.8 {
		t.Errorf("unexpected survivors %+v", kept)
	}
}

func TestNMSEmpty(t *testing.T) {
	if kept := nms(nil, 0.3); kept == nil || len(kept) != 0 {
		t.Errorf("expected an empty, non-nil slice")
	}
}
