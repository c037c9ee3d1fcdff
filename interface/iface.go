package iface

import (
	"context"

	"gocv.io/x/gocv"
)

// COCO pose keypoint indices. The index assignment is fixed by the pose
// model contract and must not vary across invocations.
const (
	LeftShoulder  = 5
	RightShoulder = 6
	LeftElbow     = 7
	RightElbow    = 8
	LeftWrist     = 9
	RightWrist    = 10

	PoseKeypoints = 17
)

// Keypoint is one body landmark in pixel coordinates with its confidence.
type Keypoint struct {
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Conf float32 `json:"confidence"`
}

// Skeleton is the ordered keypoint set for one detected person.
type Skeleton []Keypoint

// Point is an integer pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an axis-aligned pixel rectangle, XMin <= XMax and YMin <= YMax,
// inside [0,width)x[0,height) of the frame it was derived from.
type Rect struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// Contains reports whether the point lies within the rectangle. Bounds are
// inclusive on all four edges.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.XMin && p.X <= r.XMax && p.Y >= r.YMin && p.Y <= r.YMax
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: (r.XMin + r.XMax) / 2, Y: (r.YMin + r.YMax) / 2}
}

// DetectedObject is one box from the general object detector.
type DetectedObject struct {
	Class string  `json:"class"`
	Conf  float32 `json:"confidence"`
	Box   Rect    `json:"bbox"`
}

// PoseEstimator runs pose inference over a frame. It may return zero
// skeletons. Implementations return ErrModelUnavailable from the engine
// package when no model is loaded so callers can route to a fallback.
type PoseEstimator interface {
	InferPose(img gocv.Mat, conf, iou float32) ([]Skeleton, error)
}

// ObjectDetector runs general object detection over a frame. The class set
// includes "person" among arbitrary object classes.
type ObjectDetector interface {
	InferObjects(img gocv.Mat, conf, iou float32) ([]DetectedObject, error)
}

// LocalClassifier runs closed-set image classification, top-1 only.
// ok is false when the model is unloaded or yields no usable probabilities.
type LocalClassifier interface {
	InferTop1(img gocv.Mat) (class string, conf float32, ok bool, err error)
}

// CloudVisionClassifier submits an image with an instructional prompt to a
// remote vision-language model, trying candidate model ids in order. It
// returns the first non-empty response text; uploaded artifacts are cleaned
// up regardless of outcome.
type CloudVisionClassifier interface {
	Classify(ctx context.Context, imageJPEG []byte, prompt string, models []string) (string, error)
}
