package engine

import (
	"sort"

	iface "SortyxServer/interface"
)

// Candidate is one raw detection before class naming.
type Candidate struct {
	Box   iface.Rect
	Conf  float32
	Class int
}

// DecodeDetections decodes a YOLOv8 detection head laid out as
// data[attr*anchors + anchor] with attrs = 4 box values followed by one score
// per class. Boxes are scaled from input space to frame space and clamped.
func DecodeDetections(data []float32, attrs, anchors int, confThr, scaleX, scaleY float32, frameW, frameH int) []Candidate {
	if attrs < 5 || anchors <= 0 || len(data) < attrs*anchors {
		return nil
	}
	at := func(attr, anchor int) float32 { return data[attr*anchors+anchor] }

	var cands []Candidate
	for a := 0; a < anchors; a++ {
		best := 0
		bestScore := float32(0)
		for c := 4; c < attrs; c++ {
			if s := at(c, a); s > bestScore {
				bestScore = s
				best = c - 4
			}
		}
		if bestScore < confThr {
			continue
		}
		cands = append(cands, Candidate{
			Box:   decodeBox(at(0, a), at(1, a), at(2, a), at(3, a), scaleX, scaleY, frameW, frameH),
			Conf:  bestScore,
			Class: best,
		})
	}
	return cands
}

// DecodePose decodes a YOLOv8 pose head: 4 box values, one person score, then
// 17 keypoint triplets (x, y, conf). Returns box candidates and the skeleton
// attached to each, scaled to frame space.
func DecodePose(data []float32, attrs, anchors int, confThr, scaleX, scaleY float32, frameW, frameH int) ([]Candidate, []iface.Skeleton) {
	if attrs < 5+3*iface.PoseKeypoints || anchors <= 0 || len(data) < attrs*anchors {
		return nil, nil
	}
	at := func(attr, anchor int) float32 { return data[attr*anchors+anchor] }

	var cands []Candidate
	var skeletons []iface.Skeleton
	for a := 0; a < anchors; a++ {
		score := at(4, a)
		if score < confThr {
			continue
		}
		skel := make(iface.Skeleton, iface.PoseKeypoints)
		for k := 0; k < iface.PoseKeypoints; k++ {
			skel[k] = iface.Keypoint{
				X:    at(5+3*k, a) * scaleX,
				Y:    at(5+3*k+1, a) * scaleY,
				Conf: at(5+3*k+2, a),
			}
		}
		cands = append(cands, Candidate{
			Box:  decodeBox(at(0, a), at(1, a), at(2, a), at(3, a), scaleX, scaleY, frameW, frameH),
			Conf: score,
		})
		skeletons = append(skeletons, skel)
	}
	return cands, skeletons
}

func decodeBox(cx, cy, w, h, scaleX, scaleY float32, frameW, frameH int) iface.Rect {
	x1 := int((cx - w/2) * scaleX)
	y1 := int((cy - h/2) * scaleY)
	x2 := int((cx + w/2) * scaleX)
	y2 := int((cy + h/2) * scaleY)
	return iface.Rect{
		XMin: clamp(x1, 0, frameW),
		YMin: clamp(y1, 0, frameH),
		XMax: clamp(x2, 0, frameW),
		YMax: clamp(y2, 0, frameH),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IoU computes intersection over union of two rectangles.
func IoU(a, b iface.Rect) float32 {
	ix1 := maxInt(a.XMin, b.XMin)
	iy1 := maxInt(a.YMin, b.YMin)
	ix2 := minInt(a.XMax, b.XMax)
	iy2 := minInt(a.YMax, b.YMax)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := float32((ix2 - ix1) * (iy2 - iy1))
	areaA := float32((a.XMax - a.XMin) * (a.YMax - a.YMin))
	areaB := float32((b.XMax - b.XMin) * (b.YMax - b.YMin))
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMSIndices applies non-maximum suppression and returns the kept indices
// into the original slices, ordered by descending score.
func NMSIndices(boxes []iface.Rect, scores []float32, iouThr float32) []int {
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	var kept []int
	suppressed := make([]bool, len(boxes))
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, i)
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > iouThr {
				suppressed[j] = true
			}
		}
	}
	return kept
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
