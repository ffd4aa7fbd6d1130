package facematch

import "math"

// Similarity weights for faces that both carry landmarks.
const (
	WeightDescriptor = 0.60
	WeightLandmarks  = 0.25
	WeightGeometry   = 0.15
)

// landmarkNormalization is the mean per-point distance, in pixels, at which
// landmark similarity reaches zero.
const landmarkNormalization = 100.0

// Comparison breaks a face-to-face similarity into its parts.
type Comparison struct {
	Similarity     float64
	Descriptor     float64
	Landmarks      float64
	Geometry       float64
	DescriptorOnly bool // one of the faces had no landmarks
}

// Compare scores two faces. Without landmarks on either side only the
// descriptor contributes and DescriptorOnly is set so callers can discount
// their confidence.
func Compare(a, b Face) Comparison {
	desc := DescriptorSimilarity(a.Descriptor, b.Descriptor)
	if !a.HasLandmarks() || !b.HasLandmarks() {
		return Comparison{Similarity: clamp01(desc), Descriptor: desc, DescriptorOnly: true}
	}

	lm := LandmarkSimilarity(a.Landmarks, b.Landmarks)
	geo := GeometrySimilarity(a.Landmarks, b.Landmarks)
	return Comparison{
		Similarity: clamp01(desc*WeightDescriptor + lm*WeightLandmarks + geo*WeightGeometry),
		Descriptor: desc,
		Landmarks:  lm,
		Geometry:   geo,
	}
}

// Similarity returns the combined similarity of two faces in [0,1].
func Similarity(a, b Face) float64 {
	return Compare(a, b).Similarity
}

// DescriptorSimilarity normalizes the Euclidean distance between two
// embeddings by sqrt of their length. Mismatched or empty embeddings score 0.
func DescriptorSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return math.Max(0, 1-EuclideanDistance(a, b)/math.Sqrt(float64(len(a))))
}

// EuclideanDistance returns the L2 distance between two equal-length vectors.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// LandmarkSimilarity compares two landmark sets after centering each on its
// own centroid, so a face shifted within the frame still matches itself.
func LandmarkSimilarity(a, b []Point) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	ca, okA := centroid(finitePoints(a))
	cb, okB := centroid(finitePoints(b))
	if !okA || !okB {
		return 0
	}

	var total float64
	n := 0
	for i := range a {
		if !isFinite(a[i]) || !isFinite(b[i]) {
			continue
		}
		dx := (a[i].X - ca.X) - (b[i].X - cb.X)
		dy := (a[i].Y - ca.Y) - (b[i].Y - cb.Y)
		total += math.Hypot(dx, dy)
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Max(0, 1-(total/float64(n))/landmarkNormalization)
}

// GeometrySimilarity compares facial proportions. For every unordered pair of
// the eye, nose and mouth regions it takes the centroid distance within a
// face, divided by that face's mean pair distance, and scores the pair by how
// close the two faces' ratios are. The result is the mean over all pairs.
func GeometrySimilarity(a, b []Point) float64 {
	ra, okA := proportionRatios(a)
	rb, okB := proportionRatios(b)
	if !okA || !okB {
		return 0
	}

	var sum float64
	n := 0
	for i := range ra {
		if math.IsNaN(ra[i]) || math.IsNaN(rb[i]) {
			continue
		}
		sum += math.Max(0, 1-math.Abs(ra[i]-rb[i]))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// proportionRatios returns one scale-free ratio per region pair, NaN where a
// region has no usable points.
func proportionRatios(landmarks []Point) ([]float64, bool) {
	if len(landmarks) == 0 {
		return nil, false
	}

	centers := make([]Point, len(geometryRegions))
	present := make([]bool, len(geometryRegions))
	for i, r := range geometryRegions {
		centers[i], present[i] = regionCentroid(landmarks, r)
	}

	var dists []float64
	var sum float64
	n := 0
	for i := 0; i < len(geometryRegions); i++ {
		for j := i + 1; j < len(geometryRegions); j++ {
			if !present[i] || !present[j] {
				dists = append(dists, math.NaN())
				continue
			}
			d := distance(centers[i], centers[j])
			dists = append(dists, d)
			sum += d
			n++
		}
	}
	if n == 0 {
		return nil, false
	}

	scale := sum / float64(n)
	for i, d := range dists {
		if math.IsNaN(d) {
			continue
		}
		if scale == 0 {
			dists[i] = 0
			continue
		}
		dists[i] = d / scale
	}
	return dists, true
}
