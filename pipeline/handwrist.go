package pipeline

import (
	"strings"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	iface "SortyxServer/interface"
	"SortyxServer/logger"
)

// PersonFallbackLocator is the degraded-mode path used when pose estimation
// yields no usable wrist keypoints. It can confirm a person is present but
// must never invent a hand bounding box: no wrist geometry exists to anchor
// one, so it reports "fallback_failed" and downstream keeps waiting for a
// proper hand pose.
type PersonFallbackLocator struct {
	objects iface.ObjectDetector
}

// NewPersonFallbackLocator wraps a general object detector for person lookup.
func NewPersonFallbackLocator(objects iface.ObjectDetector) *PersonFallbackLocator {
	return &PersonFallbackLocator{objects: objects}
}

// Locate scans the frame for a "person" box. ok is false when no detector is
// configured, detection fails, or no person is found.
func (l *PersonFallbackLocator) Locate(img gocv.Mat) (HandDetectionResult, bool) {
	if l == nil || l.objects == nil {
		return HandDetectionResult{}, false
	}

	detections, err := l.objects.InferObjects(img, FallbackPersonConf, ObjectIou)
	if err != nil {
		logger.Log().Error("fallback person detection failed", zap.Error(err))
		return HandDetectionResult{}, false
	}

	for _, det := range detections {
		if !strings.EqualFold(det.Class, "person") {
			continue
		}
		logger.Log().Warn("fallback: person detected but no wrist keypoints",
			zap.Float32("confidence", det.Conf),
			zap.Int("x_min", det.Box.XMin), zap.Int("y_min", det.Box.YMin),
			zap.Int("x_max", det.Box.XMax), zap.Int("y_max", det.Box.YMax))
		return HandDetectionResult{
			HandDetected:  false,
			WristDetected: false,
			Message:       "Person detected but wrist keypoints not found. Please position hand clearly.",
			Method:        MethodFallbackFailed,
		}, true
	}

	logger.Log().Warn("fallback: no person detected")
	return HandDetectionResult{}, false
}

// HandWristDetector orchestrates pose inference, keypoint geometry and the
// person fallback into one detection verdict per frame. Inference failures
// are contained here and degrade stage by stage; the caller always gets a
// well-formed result.
type HandWristDetector struct {
	pose     iface.PoseEstimator
	fallback *PersonFallbackLocator
}

// NewHandWristDetector builds the detector. Either collaborator may be nil;
// the stage machine routes around missing models.
func NewHandWristDetector(pose iface.PoseEstimator, objects iface.ObjectDetector) *HandWristDetector {
	return &HandWristDetector{
		pose:     pose,
		fallback: NewPersonFallbackLocator(objects),
	}
}

// Detect runs the per-frame stage machine:
// pose inference -> wrist gate -> person fallback -> none.
func (d *HandWristDetector) Detect(img gocv.Mat) HandDetectionResult {
	if d.pose == nil {
		logger.Log().Warn("pose model not loaded")
		if res, ok := d.fallback.Locate(img); ok {
			return res
		}
		return HandDetectionResult{
			Message: "Pose model not loaded and fallback failed",
			Method:  MethodNone,
		}
	}

	if res, ok := d.detectByPose(img); ok {
		return res
	}

	if res, ok := d.fallback.Locate(img); ok {
		return res
	}

	logger.Log().Info("no person or hands detected in frame")
	return HandDetectionResult{
		Message: "No person or hands detected",
		Method:  MethodNone,
	}
}

// detectByPose returns ok=false when the pose stage produced no trustworthy
// wrist and the caller should try the fallback path.
func (d *HandWristDetector) detectByPose(img gocv.Mat) (HandDetectionResult, bool) {
	w := img.Cols()
	h := img.Rows()

	skeletons, err := d.pose.InferPose(img, PoseConf, PoseIou)
	if err != nil {
		logger.Log().Error("pose inference failed", zap.Error(err))
		return HandDetectionResult{}, false
	}
	if len(skeletons) == 0 {
		logger.Log().Info("pose: no skeletons in frame")
		return HandDetectionResult{}, false
	}

	// Only the first detected person is used.
	skeleton := skeletons[0]
	arms, err := ExtractArmKeypoints(skeleton)
	if err != nil {
		// Pose-model contract mismatch: log loud, then degrade.
		logger.Log().Error("skeleton rejected",
			zap.Error(err), zap.Int("keypoints", len(skeleton)))
		return HandDetectionResult{}, false
	}

	logger.Log().Info("pose keypoints",
		zap.Float32("left_wrist_conf", arms.LeftWrist.Conf),
		zap.Float32("right_wrist_conf", arms.RightWrist.Conf))

	if !(arms.LeftWrist.Conf > WristConfThreshold || arms.RightWrist.Conf > WristConfThreshold) {
		logger.Log().Warn("wrist confidence too low",
			zap.Float32("left", arms.LeftWrist.Conf),
			zap.Float32("right", arms.RightWrist.Conf))
		return HandDetectionResult{}, false
	}

	side := SelectDominantArm(arms.LeftWrist, arms.RightWrist)
	wrist, elbow, shoulder := arms.Arm(side)
	box, wristPos := DeriveHandRegion(wrist, elbow, shoulder, w, h)

	logger.Log().Info("hand/wrist detected",
		zap.String("side", side.String()),
		zap.Float32("wrist_conf", wrist.Conf),
		zap.Int("wrist_x", wristPos.X), zap.Int("wrist_y", wristPos.Y))

	return HandDetectionResult{
		HandDetected:   true,
		WristDetected:  true,
		HandBBox:       &box,
		WristPosition:  &wristPos,
		Confidence:     wrist.Conf,
		KeypointsCount: len(skeleton),
		Message:        "Hand and wrist detected successfully",
		Method:         MethodPose,
	}, true
}
