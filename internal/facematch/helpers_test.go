package facematch

import "math"

const floatTolerance = 0.0001

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= floatTolerance
}

// gridLandmarks lays the 68 points out on a 9-column grid centred on (cx, cy)
// with the given spacing. Region centroids are distinct, which is all the
// similarity code needs.
func gridLandmarks(cx, cy, spacing float64) []Point {
	pts := make([]Point, LandmarkCount)
	for i := range pts {
		pts[i] = Point{
			X: cx + (float64(i%9)-4)*spacing,
			Y: cy + (float64(i/9)-3.5)*spacing,
		}
	}
	return pts
}

// oneHot returns a descriptor of length n with a single 1 at index hot.
func oneHot(n, hot int) []float32 {
	d := make([]float32, n)
	d[hot] = 1
	return d
}

var testDims = Dimensions{Width: 1000, Height: 1000}

// testFace builds a well-lit, fully visible face centred at (cx, cy) whose
// quality has been assessed against a 1 MP image.
func testFace(id string, descriptor []float32, cx, cy float64) Face {
	f := Face{
		ID:             id,
		Descriptor:     descriptor,
		Box:            Box{X: cx - 100, Y: cy - 100, Width: 200, Height: 200},
		Landmarks:      gridLandmarks(cx, cy, 10),
		DetectionScore: 0.9,
	}
	f.Quality = AssessQuality(f, testDims)
	return f
}

// descriptorOnlyFace is testFace without landmarks.
func descriptorOnlyFace(id string, descriptor []float32, cx, cy float64) Face {
	f := testFace(id, descriptor, cx, cy)
	f.Landmarks = nil
	f.Quality = AssessQuality(f, testDims)
	return f
}
