package facematch

import "math"

// Overall quality weights.
const (
	weightDescriptorQuality = 0.25
	weightSizeQuality       = 0.20
	weightDetectionScore    = 0.20
	weightResolution        = 0.15
	weightBlur              = 0.10
	weightPartialFace       = 0.10
)

// neutralQuality is used where a score cannot be computed from the input.
const neutralQuality = 0.5

// minBlurLandmarks is the fewest finite landmarks blur can be estimated from.
const minBlurLandmarks = 10

// AssessQuality derives the composite quality of a face detected in an image
// of the given dimensions.
func AssessQuality(face Face, dims Dimensions) QualityReport {
	if !face.HasDescriptor() {
		return QualityReport{}
	}

	score := clamp01(face.DetectionScore)
	faceArea := face.Box.Area()
	var faceRatio float64
	if px := dims.Pixels(); px > 0 {
		faceRatio = faceArea / px
	}

	q := QualityReport{
		DescriptorQuality:  descriptorQuality(face.Descriptor, score),
		SizeQuality:        sizeQuality(faceRatio),
		ResolutionQuality:  resolutionQuality(dims.Pixels()),
		BlurQuality:        blurQuality(face.Landmarks),
		PartialFaceQuality: partialFaceQuality(face.Landmarks, face.Box),
		LandmarkQuality:    LandmarkQuality(face.Landmarks),
		DetectionScore:     score,
		FaceRatio:          faceRatio,
		FaceArea:           faceArea,
	}
	q.OverallQuality = q.DescriptorQuality*weightDescriptorQuality +
		q.SizeQuality*weightSizeQuality +
		q.DetectionScore*weightDetectionScore +
		q.ResolutionQuality*weightResolution +
		q.BlurQuality*weightBlur +
		q.PartialFaceQuality*weightPartialFace
	return q
}

// descriptorQuality blends the spread of the embedding (70%) with the
// detector confidence (30%).
func descriptorQuality(descriptor []float32, score float64) float64 {
	if len(descriptor) == 0 {
		return 0
	}
	var sum float64
	for _, v := range descriptor {
		sum += float64(v)
	}
	mean := sum / float64(len(descriptor))

	var variance float64
	for _, v := range descriptor {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(descriptor))

	return math.Min(1, math.Sqrt(variance)*2)*0.7 + score*0.3
}

// sizeQuality scales the face-to-image area ratio piecewise so that small
// faces keep a non-zero but capped score.
func sizeQuality(ratio float64) float64 {
	switch {
	case ratio > 0.01:
		return math.Min(1, ratio*100)
	case ratio > 0.001:
		return math.Min(0.8, ratio*800)
	default:
		return math.Min(0.6, max(0, ratio)*6000)
	}
}

func resolutionQuality(pixels float64) float64 {
	switch {
	case pixels >= 2_000_000:
		return 1.0
	case pixels >= 1_000_000:
		return 0.8
	case pixels >= 500_000:
		return 0.6
	case pixels >= 250_000:
		return 0.4
	default:
		return 0.2
	}
}

// blurQuality treats a wide landmark spread about the centroid as blur.
func blurQuality(landmarks []Point) float64 {
	pts := finitePoints(landmarks)
	if len(pts) < minBlurLandmarks {
		return neutralQuality
	}
	c, _ := centroid(pts)

	var variance float64
	for _, p := range pts {
		dx, dy := p.X-c.X, p.Y-c.Y
		variance += dx*dx + dy*dy
	}
	variance /= float64(len(pts))

	blurScore := math.Min(1, math.Sqrt(variance)/100)
	return math.Max(0.1, 1-blurScore)
}

// partialFaceQuality bands the share of landmarks that fall inside the box.
func partialFaceQuality(landmarks []Point, box Box) float64 {
	if len(landmarks) == 0 {
		return neutralQuality
	}
	visible := 0
	for _, p := range landmarks {
		if isFinite(p) && box.Contains(p) {
			visible++
		}
	}
	ratio := float64(visible) / float64(len(landmarks))

	switch {
	case ratio >= 0.9:
		return 1.0
	case ratio >= 0.7:
		return 0.8
	case ratio >= 0.5:
		return 0.6
	case ratio >= 0.3:
		return 0.4
	default:
		return 0.2
	}
}

// LandmarkQuality scores how complete the five named regions are. A single
// missing region pulls the score down harder than the plain average would.
func LandmarkQuality(landmarks []Point) float64 {
	if len(landmarks) == 0 {
		return 0
	}

	var sum float64
	lowest := 1.0
	for _, s := range regionSpans {
		total, present := 0, 0
		for i := s.first; i <= s.last; i++ {
			total++
			if i < len(landmarks) && isFinite(landmarks[i]) {
				present++
			}
		}
		rq := float64(present) / float64(total)
		sum += rq
		lowest = math.Min(lowest, rq)
	}
	avg := sum / float64(len(regionSpans))

	return math.Min(1, math.Min(avg, lowest*1.2))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
