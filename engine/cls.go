package engine

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

const clsInputSize = 224

// ClassifyEngine runs a YOLOv8-cls closed-set classification model.
type ClassifyEngine struct {
	netModel
	names []string
}

// NewClassifyEngine creates an engine with no model loaded.
func NewClassifyEngine() *ClassifyEngine {
	return &ClassifyEngine{netModel: netModel{state: REGISTERED}}
}

// LoadModel reads the ONNX model and its class names, one per line.
func (e *ClassifyEngine) LoadModel(modelPath, namesPath string) error {
	names, err := ReadLinesReadFile(namesPath)
	if err != nil {
		return fmt.Errorf("%w: names file: %v", ErrModelUnavailable, err)
	}
	e.names = names
	return e.load(modelPath, clsInputSize)
}

// InferTop1 returns the highest-probability class. ok is false when the
// output carries no usable probability distribution.
func (e *ClassifyEngine) InferTop1(img gocv.Mat) (string, float32, bool, error) {
	out, _, _, err := e.forward(img)
	if err != nil {
		return "", 0, false, err
	}
	defer out.Close()

	probs, err := out.DataPtrFloat32()
	if err != nil {
		return "", 0, false, fmt.Errorf("read classification output: %w", err)
	}
	if len(probs) == 0 {
		return "", 0, false, nil
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	conf := probs[best]
	if conf <= 0 || math.IsNaN(float64(conf)) || math.IsInf(float64(conf), 0) {
		return "", 0, false, nil
	}
	if best >= len(e.names) {
		return "", 0, false, nil
	}
	return e.names[best], conf, true, nil
}
