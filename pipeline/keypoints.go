package pipeline

import (
	iface "SortyxServer/interface"
)

// ArmKeypoints holds the six upper-limb landmarks the pipeline reads from a
// skeleton. Everything else the pose model reports is ignored.
type ArmKeypoints struct {
	LeftWrist     iface.Keypoint
	RightWrist    iface.Keypoint
	LeftElbow     iface.Keypoint
	RightElbow    iface.Keypoint
	LeftShoulder  iface.Keypoint
	RightShoulder iface.Keypoint
}

// ExtractArmKeypoints does a pure indexed lookup of the wrist, elbow and
// shoulder landmarks. It fails with ErrMalformedSkeleton when the skeleton is
// shorter than the maximum referenced index.
func ExtractArmKeypoints(s iface.Skeleton) (ArmKeypoints, error) {
	if len(s) <= iface.RightWrist {
		return ArmKeypoints{}, ErrMalformedSkeleton
	}
	return ArmKeypoints{
		LeftWrist:     s[iface.LeftWrist],
		RightWrist:    s[iface.RightWrist],
		LeftElbow:     s[iface.LeftElbow],
		RightElbow:    s[iface.RightElbow],
		LeftShoulder:  s[iface.LeftShoulder],
		RightShoulder: s[iface.RightShoulder],
	}, nil
}

// ArmSide selects one arm of the skeleton.
type ArmSide int

const (
	ArmLeft ArmSide = iota
	ArmRight
)

func (s ArmSide) String() string {
	if s == ArmRight {
		return "right"
	}
	return "left"
}

// SelectDominantArm picks the side whose wrist confidence is strictly higher.
// Ties resolve to left, keeping the choice deterministic.
func SelectDominantArm(left, right iface.Keypoint) ArmSide {
	if left.Conf > right.Conf {
		return ArmLeft
	}
	if right.Conf > left.Conf {
		return ArmRight
	}
	return ArmLeft
}

// Arm returns the wrist, elbow and shoulder of one side.
func (a ArmKeypoints) Arm(side ArmSide) (wrist, elbow, shoulder iface.Keypoint) {
	if side == ArmRight {
		return a.RightWrist, a.RightElbow, a.RightShoulder
	}
	return a.LeftWrist, a.LeftElbow, a.LeftShoulder
}

// DeriveHandRegion estimates where the hand is from the wrist position and
// the forearm direction, then emits a square region clamped to the frame.
// A low-confidence elbow falls back to the shoulder for a coarser but more
// stable direction estimate.
func DeriveHandRegion(wrist, elbow, shoulder iface.Keypoint, frameW, frameH int) (iface.Rect, iface.Point) {
	wristX := int(wrist.X)
	wristY := int(wrist.Y)

	var dx, dy int
	if elbow.Conf < ElbowConfMin {
		dx = wristX - int(shoulder.X)
		dy = wristY - int(shoulder.Y)
	} else {
		dx = wristX - int(elbow.X)
		dy = wristY - int(elbow.Y)
	}

	// The center itself is clamped first: a long forearm pointing off-frame
	// would otherwise push the whole square outside and invert the bounds.
	centerX := clampInt(wristX+int(float64(dx)*HandExtendRatio), 0, frameW)
	centerY := clampInt(wristY+int(float64(dy)*HandExtendRatio), 0, frameH)

	box := iface.Rect{
		XMin: maxInt(0, centerX-HandBoxHalf),
		YMin: maxInt(0, centerY-HandBoxHalf),
		XMax: minInt(frameW, centerX+HandBoxHalf),
		YMax: minInt(frameH, centerY+HandBoxHalf),
	}
	return box, iface.Point{X: wristX, Y: wristY}
}

func clampInt(v, lo, hi int) int {
	return minInt(maxInt(v, lo), hi)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
