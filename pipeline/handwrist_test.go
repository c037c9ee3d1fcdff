package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	iface "SortyxServer/interface"
)

type fakePose struct {
	skeletons []iface.Skeleton
	err       error
}

func (f *fakePose) InferPose(img gocv.Mat, conf, iou float32) ([]iface.Skeleton, error) {
	return f.skeletons, f.err
}

type fakeObjects struct {
	detections []iface.DetectedObject
	err        error
}

func (f *fakeObjects) InferObjects(img gocv.Mat, conf, iou float32) ([]iface.DetectedObject, error) {
	return f.detections, f.err
}

func skeletonWithWrists(leftConf, rightConf float32) iface.Skeleton {
	s := make(iface.Skeleton, iface.PoseKeypoints)
	s[iface.LeftShoulder] = iface.Keypoint{X: 280, Y: 100, Conf: 0.9}
	s[iface.RightShoulder] = iface.Keypoint{X: 360, Y: 100, Conf: 0.9}
	s[iface.LeftElbow] = iface.Keypoint{X: 260, Y: 180, Conf: 0.8}
	s[iface.RightElbow] = iface.Keypoint{X: 380, Y: 180, Conf: 0.8}
	s[iface.LeftWrist] = iface.Keypoint{X: 250, Y: 260, Conf: leftConf}
	s[iface.RightWrist] = iface.Keypoint{X: 390, Y: 260, Conf: rightConf}
	return s
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { _ = img.Close() })
	return img
}

func personDetection() iface.DetectedObject {
	return iface.DetectedObject{
		Class: "person", Conf: 0.8,
		Box: iface.Rect{XMin: 100, YMin: 50, XMax: 500, YMax: 470},
	}
}

func TestHandWristDetector_Detect(t *testing.T) {
	img := testFrame(t)

	t.Run("wrist above threshold detected", func(t *testing.T) {
		pose := &fakePose{skeletons: []iface.Skeleton{skeletonWithWrists(0.31, 0.1)}}
		d := NewHandWristDetector(pose, nil)

		res := d.Detect(img)
		assert.True(t, res.HandDetected)
		assert.True(t, res.WristDetected)
		assert.NotNil(t, res.HandBBox)
		assert.NotNil(t, res.WristPosition)
		assert.Equal(t, float32(0.31), res.Confidence)
		assert.Equal(t, iface.PoseKeypoints, res.KeypointsCount)
		assert.Equal(t, "Hand and wrist detected successfully", res.Message)
		assert.Equal(t, MethodPose, res.Method)
		assert.Equal(t, &iface.Point{X: 250, Y: 260}, res.WristPosition)
	})

	t.Run("threshold is strict", func(t *testing.T) {
		pose := &fakePose{skeletons: []iface.Skeleton{skeletonWithWrists(0.30, 0.30)}}
		d := NewHandWristDetector(pose, nil)

		res := d.Detect(img)
		assert.False(t, res.HandDetected)
		assert.False(t, res.WristDetected)
		assert.Equal(t, MethodNone, res.Method)
		assert.Equal(t, "No person or hands detected", res.Message)
	})

	t.Run("dominant arm picked", func(t *testing.T) {
		pose := &fakePose{skeletons: []iface.Skeleton{skeletonWithWrists(0.4, 0.9)}}
		d := NewHandWristDetector(pose, nil)

		res := d.Detect(img)
		assert.True(t, res.HandDetected)
		assert.Equal(t, float32(0.9), res.Confidence)
		assert.Equal(t, &iface.Point{X: 390, Y: 260}, res.WristPosition)
	})

	t.Run("low wrist falls back to person detection", func(t *testing.T) {
		pose := &fakePose{skeletons: []iface.Skeleton{skeletonWithWrists(0.05, 0.05)}}
		objects := &fakeObjects{detections: []iface.DetectedObject{personDetection()}}
		d := NewHandWristDetector(pose, objects)

		res := d.Detect(img)
		assert.False(t, res.HandDetected)
		assert.False(t, res.WristDetected)
		assert.Nil(t, res.HandBBox)
		assert.Nil(t, res.WristPosition)
		assert.Equal(t, MethodFallbackFailed, res.Method)
		assert.Equal(t, "Person detected but wrist keypoints not found. Please position hand clearly.", res.Message)
	})

	t.Run("malformed skeleton degrades to fallback", func(t *testing.T) {
		pose := &fakePose{skeletons: []iface.Skeleton{make(iface.Skeleton, 5)}}
		objects := &fakeObjects{detections: []iface.DetectedObject{personDetection()}}
		d := NewHandWristDetector(pose, objects)

		res := d.Detect(img)
		assert.False(t, res.HandDetected)
		assert.Equal(t, MethodFallbackFailed, res.Method)
	})

	t.Run("pose error and no person yields none", func(t *testing.T) {
		pose := &fakePose{err: errors.New("boom")}
		objects := &fakeObjects{}
		d := NewHandWristDetector(pose, objects)

		res := d.Detect(img)
		assert.Equal(t, MethodNone, res.Method)
		assert.Equal(t, "No person or hands detected", res.Message)
	})

	t.Run("no pose model at all", func(t *testing.T) {
		d := NewHandWristDetector(nil, nil)

		res := d.Detect(img)
		assert.False(t, res.HandDetected)
		assert.Equal(t, MethodNone, res.Method)
		assert.Equal(t, "Pose model not loaded and fallback failed", res.Message)
	})

	t.Run("no pose model but person visible", func(t *testing.T) {
		objects := &fakeObjects{detections: []iface.DetectedObject{personDetection()}}
		d := NewHandWristDetector(nil, objects)

		res := d.Detect(img)
		assert.Equal(t, MethodFallbackFailed, res.Method)
	})

	t.Run("repeated frames give the same verdict", func(t *testing.T) {
		pose := &fakePose{skeletons: []iface.Skeleton{skeletonWithWrists(0.5, 0.2)}}
		d := NewHandWristDetector(pose, nil)

		first := d.Detect(img)
		second := d.Detect(img)
		assert.Equal(t, first, second)
	})
}

func TestPersonFallbackLocator(t *testing.T) {
	img := testFrame(t)

	t.Run("nil detector", func(t *testing.T) {
		l := NewPersonFallbackLocator(nil)
		_, ok := l.Locate(img)
		assert.False(t, ok)
	})

	t.Run("detection error", func(t *testing.T) {
		l := NewPersonFallbackLocator(&fakeObjects{err: errors.New("boom")})
		_, ok := l.Locate(img)
		assert.False(t, ok)
	})

	t.Run("non-person detections ignored", func(t *testing.T) {
		l := NewPersonFallbackLocator(&fakeObjects{detections: []iface.DetectedObject{
			{Class: "bottle", Conf: 0.9, Box: iface.Rect{XMax: 100, YMax: 100}},
		}})
		_, ok := l.Locate(img)
		assert.False(t, ok)
	})

	t.Run("person match is case insensitive", func(t *testing.T) {
		l := NewPersonFallbackLocator(&fakeObjects{detections: []iface.DetectedObject{
			{Class: "Person", Conf: 0.6, Box: iface.Rect{XMax: 100, YMax: 100}},
		}})
		res, ok := l.Locate(img)
		assert.True(t, ok)
		assert.False(t, res.HandDetected)
		assert.Equal(t, MethodFallbackFailed, res.Method)
	})
}
