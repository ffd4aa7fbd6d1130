package facematch

// DuplicateIoUThreshold is the overlap above which two detections are taken
// to be the same face.
const DuplicateIoUThreshold = 0.7

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// IoU is ComputeIoU for two face boxes.
func IoU(a, b Box) float64 {
	return ComputeIoU(a.Corners(), b.Corners())
}

// BoxFromCorners converts an [x1, y1, x2, y2] bbox into a Box.
// Malformed input yields the zero Box.
func BoxFromCorners(bbox []float64) Box {
	if len(bbox) != 4 {
		return Box{}
	}
	return Box{X: bbox[0], Y: bbox[1], Width: bbox[2] - bbox[0], Height: bbox[3] - bbox[1]}
}

// RescaleFace maps a face detected on an image resized by factor back into
// the coordinates of the original image.
func RescaleFace(f Face, factor float64) Face {
	if factor <= 0 || factor == 1 {
		return f
	}
	f.Box = Box{
		X:      f.Box.X / factor,
		Y:      f.Box.Y / factor,
		Width:  f.Box.Width / factor,
		Height: f.Box.Height / factor,
	}
	if len(f.Landmarks) > 0 {
		pts := make([]Point, len(f.Landmarks))
		for i, p := range f.Landmarks {
			pts[i] = Point{X: p.X / factor, Y: p.Y / factor}
		}
		f.Landmarks = pts
	}
	return f
}

// DedupeFaces merges detections whose boxes overlap by more than the IoU
// threshold, keeping the one with the higher detection score in the slot of
// the first one seen. Input order is otherwise preserved.
func DedupeFaces(faces []Face, threshold float64) []Face {
	return mergeOverlapping(faces, threshold,
		func(f Face) Box { return f.Box },
		func(f Face) float64 { return f.DetectionScore },
		nil,
	)
}

// mergeOverlapping is the IoU merge shared by detection dedup and the ranker.
// sameGroup, when set, limits merging to items it reports as related.
func mergeOverlapping[T any](items []T, threshold float64, box func(T) Box, score func(T) float64, sameGroup func(a, b T) bool) []T {
	if len(items) <= 1 {
		return items
	}

	unique := make([]T, 0, len(items))
	for _, item := range items {
		duplicate := false
		for i, kept := range unique {
			if sameGroup != nil && !sameGroup(item, kept) {
				continue
			}
			if IoU(box(item), box(kept)) > threshold {
				if score(item) > score(kept) {
					unique[i] = item
				}
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, item)
		}
	}
	return unique
}
