package faceindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// countingExtractor serves canned faces per path and counts calls.
type countingExtractor struct {
	mu       sync.Mutex
	files    map[string][]facematch.Face
	fileErrs map[string]error
	image    []facematch.Face
	imageErr error
	calls    map[string]int
}

func newCountingExtractor() *countingExtractor {
	return &countingExtractor{
		files:    make(map[string][]facematch.Face),
		fileErrs: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (e *countingExtractor) ExtractFile(_ context.Context, path string) ([]facematch.Face, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[path]++
	if err := e.fileErrs[path]; err != nil {
		return nil, err
	}
	return e.files[path], nil
}

func (e *countingExtractor) ExtractImage(_ context.Context, _ []byte) ([]facematch.Face, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["<image>"]++
	return e.image, e.imageErr
}

func (e *countingExtractor) Calls(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[path]
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testPhoto(id string, modified time.Time) facematch.Photo {
	return facematch.Photo{ID: id, Path: "/photos/" + id, FileName: id, LastModified: modified}
}

func testPhotos(n int) []facematch.Photo {
	out := make([]facematch.Photo, n)
	for i := range out {
		out[i] = testPhoto(fmt.Sprintf("p%03d.jpg", i), baseTime)
	}
	return out
}

// goodQuality is a large, sharp, fully visible face.
var goodQuality = facematch.QualityReport{
	DescriptorQuality:  0.9,
	SizeQuality:        1,
	ResolutionQuality:  1,
	BlurQuality:        0.9,
	PartialFaceQuality: 1,
	DetectionScore:     0.95,
	OverallQuality:     0.9,
	FaceRatio:          0.04,
	FaceArea:           40000,
}

// descriptorFace is a landmark-less face at column x of the frame.
func descriptorFace(id string, x float64, descriptor ...float32) facematch.Face {
	return facematch.Face{
		ID:             id,
		Descriptor:     descriptor,
		Box:            facematch.Box{X: x, Y: 0, Width: 200, Height: 200},
		DetectionScore: 0.95,
		Quality:        goodQuality,
	}
}

var (
	exactDescriptor    = []float32{1, 0, 0, 0, 0, 0, 0, 0}
	nearDescriptor     = []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0}
	oppositeDescriptor = []float32{-1, 0, 0, 0, 0, 0, 0, 0}
)
