// Package detector turns images into faces ready for the index: it calls an
// external face-analysis service, maps detections back to source
// coordinates, merges duplicates, assigns IDs, scores quality and drops
// faces that won't match reliably.
package detector

import (
	"context"
	"image"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// Detector finds faces in an image. Returned boxes and landmarks are in the
// coordinates of img; IDs and quality are left for the pipeline to fill.
type Detector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]facematch.Face, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]facematch.Face, error)

// DetectFaces calls f.
func (f DetectorFunc) DetectFaces(ctx context.Context, img image.Image) ([]facematch.Face, error) {
	return f(ctx, img)
}
