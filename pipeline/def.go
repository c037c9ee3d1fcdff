package pipeline

import (
	"errors"

	iface "SortyxServer/interface"
)

// ErrMalformedSkeleton means the pose model returned fewer keypoints than the
// fixed COCO index assignment requires. That is a model contract mismatch and
// is logged loud before the detector degrades to the fallback path.
var ErrMalformedSkeleton = errors.New("malformed skeleton: keypoint index out of range")

// Detection tuning. Pose runs at a deliberately low threshold to favor recall
// of candidate skeletons; the wrist gate downstream is strict so a low-quality
// keypoint cannot fake a "hand ready" signal.
const (
	PoseConf = 0.10
	PoseIou  = 0.50

	// WristConfThreshold is the minimum keypoint confidence required to trust
	// a wrist position. Comparison is strict: exactly 0.30 is rejected.
	WristConfThreshold = 0.30

	// ElbowConfMin is the minimum elbow confidence for the forearm direction
	// estimate; below it the shoulder anchors a coarser direction.
	ElbowConfMin = 0.2

	// HandExtendRatio extends past the wrist along the forearm direction to
	// reach the hand, which pose models do not explicitly keypoint.
	HandExtendRatio = 0.35

	// HandBoxHalf is the half-width of the square hand region in pixels.
	HandBoxHalf = 250

	FallbackPersonConf = 0.15

	ObjectConf = 0.30
	ObjectIou  = 0.45

	// CropMargin pads the held-object box on each side before cropping.
	CropMargin = 20
)

// DetectionMethod tags which stage produced a HandDetectionResult.
type DetectionMethod string

const (
	MethodPose           DetectionMethod = "pose"
	MethodFallbackFailed DetectionMethod = "fallback_failed"
	MethodNone           DetectionMethod = "none"
)

// HandDetectionResult is the per-frame verdict of the hand/wrist detector.
// Invariant: HandDetected implies WristDetected implies HandBBox and
// WristPosition are non-nil.
type HandDetectionResult struct {
	HandDetected   bool            `json:"hand_detected"`
	WristDetected  bool            `json:"wrist_detected"`
	HandBBox       *iface.Rect     `json:"hand_bbox"`
	WristPosition  *iface.Point    `json:"wrist_position"`
	Confidence     float32         `json:"confidence"`
	KeypointsCount int             `json:"keypoints_count"`
	Message        string          `json:"message"`
	Method         DetectionMethod `json:"method"`
}

// HeldObject is the object selected as "in hand".
type HeldObject struct {
	XMin  int     `json:"x_min"`
	YMin  int     `json:"y_min"`
	XMax  int     `json:"x_max"`
	YMax  int     `json:"y_max"`
	Class string  `json:"class"`
	Conf  float32 `json:"confidence"`
}

// ObjectInHandResult is computed fresh per request and never persisted.
// DetectedObjects always carries the full detection list for observability,
// whether or not a held object was selected.
type ObjectInHandResult struct {
	ObjectInHand    bool                   `json:"object_in_hand"`
	ObjectBBox      *HeldObject            `json:"object_bbox"`
	CroppedImage    *string                `json:"cropped_image"`
	DetectedObjects []iface.DetectedObject `json:"detected_objects"`
}
