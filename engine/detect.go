package engine

import (
	"fmt"

	"gocv.io/x/gocv"

	iface "SortyxServer/interface"
)

const detectInputSize = 640

// ObjectEngine runs a YOLOv8 detection model through the gocv DNN backend.
type ObjectEngine struct {
	netModel
	names []string
}

// NewObjectEngine creates an engine with no model loaded.
func NewObjectEngine() *ObjectEngine {
	return &ObjectEngine{netModel: netModel{state: REGISTERED}}
}

// LoadModel reads the ONNX model. An empty names slice defaults to the COCO
// label set.
func (e *ObjectEngine) LoadModel(modelPath string, names []string) error {
	if len(names) == 0 {
		names = COCONames
	}
	e.names = names
	return e.load(modelPath, detectInputSize)
}

// InferObjects runs detection at the given confidence and IoU thresholds.
func (e *ObjectEngine) InferObjects(img gocv.Mat, conf, iou float32) ([]iface.DetectedObject, error) {
	out, scaleX, scaleY, err := e.forward(img)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected detection output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read detection output: %w", err)
	}

	cands := DecodeDetections(data, dims[1], dims[2], conf, scaleX, scaleY, img.Cols(), img.Rows())
	boxes := make([]iface.Rect, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Conf
	}

	var detections []iface.DetectedObject
	for _, i := range NMSIndices(boxes, scores, iou) {
		detections = append(detections, iface.DetectedObject{
			Class: e.className(cands[i].Class),
			Conf:  cands[i].Conf,
			Box:   cands[i].Box,
		})
	}
	return detections, nil
}

func (e *ObjectEngine) className(idx int) string {
	if idx >= 0 && idx < len(e.names) {
		return e.names[idx]
	}
	return fmt.Sprintf("unknown_%d", idx)
}
