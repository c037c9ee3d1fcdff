package engine

import (
	"fmt"

	"gocv.io/x/gocv"

	iface "SortyxServer/interface"
)

const poseInputSize = 640

// PoseEngine runs a YOLOv8-pose model through the gocv DNN backend.
type PoseEngine struct {
	netModel
}

// NewPoseEngine creates an engine with no model loaded.
func NewPoseEngine() *PoseEngine {
	return &PoseEngine{netModel: netModel{state: REGISTERED}}
}

// LoadModel reads the ONNX pose model.
func (e *PoseEngine) LoadModel(modelPath string) error {
	return e.load(modelPath, poseInputSize)
}

// InferPose returns the skeletons of detected persons ordered by descending
// box confidence. May return zero skeletons.
func (e *PoseEngine) InferPose(img gocv.Mat, conf, iou float32) ([]iface.Skeleton, error) {
	out, scaleX, scaleY, err := e.forward(img)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected pose output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read pose output: %w", err)
	}

	cands, skels := DecodePose(data, dims[1], dims[2], conf, scaleX, scaleY, img.Cols(), img.Rows())
	boxes := make([]iface.Rect, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Conf
	}

	var skeletons []iface.Skeleton
	for _, i := range NMSIndices(boxes, scores, iou) {
		skeletons = append(skeletons, skels[i])
	}
	return skeletons, nil
}
