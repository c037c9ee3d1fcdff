package pipeline

import (
	"encoding/base64"
	"image"
	"strings"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	iface "SortyxServer/interface"
	"SortyxServer/logger"
)

// ObjectInHandResolver decides whether a detected hand region actually holds
// an object, and if so crops the object for classification. It is only
// invoked when the hand/wrist detector reported a hand.
type ObjectInHandResolver struct {
	objects iface.ObjectDetector
}

// NewObjectInHandResolver wraps the general object detector.
func NewObjectInHandResolver(objects iface.ObjectDetector) *ObjectInHandResolver {
	return &ObjectInHandResolver{objects: objects}
}

// FirstHeldObject scans detections in detector-returned order and returns the
// index of the first non-person box whose center lies within the hand region.
// Bounds are inclusive. First match wins, not best match.
func FirstHeldObject(detections []iface.DetectedObject, hand iface.Rect) (int, bool) {
	for i, det := range detections {
		if strings.EqualFold(det.Class, "person") {
			continue
		}
		if hand.Contains(det.Box.Center()) {
			return i, true
		}
	}
	return -1, false
}

// CropRect expands the object box by the margin on each side and clamps it to
// the frame.
func CropRect(box iface.Rect, margin, frameW, frameH int) iface.Rect {
	return iface.Rect{
		XMin: maxInt(0, box.XMin-margin),
		YMin: maxInt(0, box.YMin-margin),
		XMax: minInt(frameW, box.XMax+margin),
		YMax: minInt(frameH, box.YMax+margin),
	}
}

// Resolve runs object detection over the whole frame and tests containment
// against the hand region. The full detection list is always returned for
// observability; no match means the caller keeps polling future frames.
func (r *ObjectInHandResolver) Resolve(img gocv.Mat, hand iface.Rect) ObjectInHandResult {
	result := ObjectInHandResult{DetectedObjects: []iface.DetectedObject{}}

	if r.objects == nil {
		logger.Log().Warn("object detection model not loaded")
		return result
	}

	detections, err := r.objects.InferObjects(img, ObjectConf, ObjectIou)
	if err != nil {
		logger.Log().Error("object detection failed", zap.Error(err))
		return result
	}
	result.DetectedObjects = detections

	idx, ok := FirstHeldObject(detections, hand)
	if !ok {
		return result
	}

	held := detections[idx]
	result.ObjectInHand = true
	result.ObjectBBox = &HeldObject{
		XMin:  held.Box.XMin,
		YMin:  held.Box.YMin,
		XMax:  held.Box.XMax,
		YMax:  held.Box.YMax,
		Class: held.Class,
		Conf:  held.Conf,
	}

	logger.Log().Info("object in hand",
		zap.String("class", held.Class), zap.Float32("confidence", held.Conf))

	if crop := encodeCrop(img, CropRect(held.Box, CropMargin, img.Cols(), img.Rows())); crop != "" {
		result.CroppedImage = &crop
	}
	return result
}

// encodeCrop cuts the padded region out of the frame and encodes it as a
// JPEG data URL. Returns "" when the region is degenerate or encoding fails.
func encodeCrop(img gocv.Mat, crop iface.Rect) string {
	if crop.XMax <= crop.XMin || crop.YMax <= crop.YMin {
		return ""
	}

	region := img.Region(image.Rect(crop.XMin, crop.YMin, crop.XMax, crop.YMax))
	defer region.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, region)
	if err != nil {
		logger.Log().Error("crop encode failed", zap.Error(err))
		return ""
	}
	defer buf.Close()

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.GetBytes())
}
