package facematch

import (
	"bytes"
	"math"

	jsoniter "github.com/json-iterator/go"
)

// LandmarkCount is the size of the landmark scheme faces are annotated with.
const LandmarkCount = 68

// Region is a named group of landmark indices.
type Region string

const (
	RegionJawline  Region = "jawline"
	RegionNose     Region = "nose"
	RegionLeftEye  Region = "left_eye"
	RegionRightEye Region = "right_eye"
	RegionMouth    Region = "mouth"
)

// regionSpan maps a region onto an inclusive index range of the 68-point scheme.
type regionSpan struct {
	region      Region
	first, last int
}

var regionSpans = []regionSpan{
	{RegionLeftEye, 36, 41},
	{RegionRightEye, 42, 47},
	{RegionNose, 27, 35},
	{RegionMouth, 48, 59},
	{RegionJawline, 0, 16},
}

// geometryRegions are compared pairwise for facial proportions; the jawline
// takes no part in the ratios.
var geometryRegions = []Region{RegionLeftEye, RegionRightEye, RegionNose, RegionMouth}

// Regions returns the named landmark regions in a fixed order.
func Regions() []Region {
	out := make([]Region, len(regionSpans))
	for i, s := range regionSpans {
		out[i] = s.region
	}
	return out
}

// RegionIndices returns the landmark indices that make up a region.
func RegionIndices(r Region) []int {
	for _, s := range regionSpans {
		if s.region != r {
			continue
		}
		idx := make([]int, 0, s.last-s.first+1)
		for i := s.first; i <= s.last; i++ {
			idx = append(idx, i)
		}
		return idx
	}
	return nil
}

// MissingPoint is the placeholder for a landmark the detector could not
// place. It keeps its slot in the landmark list and is skipped by every
// measurement.
func MissingPoint() Point {
	return Point{X: math.NaN(), Y: math.NaN()}
}

// jsonPoint allows null coordinates, which is how missing points are stored.
type jsonPoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// MarshalJSON writes non-finite coordinates as null.
func (p Point) MarshalJSON() ([]byte, error) {
	var v jsonPoint
	if isFinite(p) {
		v.X, v.Y = &p.X, &p.Y
	}
	return jsoniter.Marshal(v)
}

// UnmarshalJSON reads null coordinates, or a null point, as missing.
func (p *Point) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = MissingPoint()
		return nil
	}
	var v jsonPoint
	if err := jsoniter.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.X == nil || v.Y == nil {
		*p = MissingPoint()
		return nil
	}
	*p = Point{X: *v.X, Y: *v.Y}
	return nil
}

func isFinite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// finitePoints drops points with NaN or infinite coordinates.
func finitePoints(points []Point) []Point {
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if isFinite(p) {
			out = append(out, p)
		}
	}
	return out
}

// centroid returns the mean of points; ok is false for an empty set.
func centroid(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return Point{X: sx / n, Y: sy / n}, true
}

// regionCentroid averages the finite landmarks of a region that are present.
func regionCentroid(landmarks []Point, r Region) (Point, bool) {
	var pts []Point
	for _, i := range RegionIndices(r) {
		if i < len(landmarks) && isFinite(landmarks[i]) {
			pts = append(pts, landmarks[i])
		}
	}
	return centroid(pts)
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
