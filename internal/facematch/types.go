// Package facematch scores detected faces against a reference face.
// Everything here is pure: no I/O, no randomness, no shared state, so the
// same inputs always produce the same scores and the same ordering.
package facematch

import "time"

// Point is a 2D landmark position in source-image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned face rectangle in source-image pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area in square pixels.
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p Point) bool {
	return p.X >= b.X && p.X <= b.X+b.Width && p.Y >= b.Y && p.Y <= b.Y+b.Height
}

// Corners returns the box as [x1, y1, x2, y2].
func (b Box) Corners() []float64 {
	return []float64{b.X, b.Y, b.X + b.Width, b.Y + b.Height}
}

// Dimensions describes the source image a face was detected in.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Pixels returns the total pixel count.
func (d Dimensions) Pixels() float64 {
	if d.Width <= 0 || d.Height <= 0 {
		return 0
	}
	return float64(d.Width) * float64(d.Height)
}

// Face is one detected face. It is owned by the photo that produced it and
// is not modified after it has been stored.
type Face struct {
	ID             string        `json:"id"`
	Descriptor     []float32     `json:"descriptor"`
	Box            Box           `json:"box"`
	Landmarks      []Point       `json:"landmarks,omitempty"`
	DetectionScore float64       `json:"detection_score"`
	Scale          float64       `json:"scale,omitempty"` // detection scale the face was found at
	Quality        QualityReport `json:"quality"`
}

// HasDescriptor reports whether the face carries an embedding.
func (f Face) HasDescriptor() bool {
	return len(f.Descriptor) > 0
}

// HasLandmarks reports whether the face carries landmark points.
func (f Face) HasLandmarks() bool {
	return len(f.Landmarks) > 0
}

// QualityReport is the composite quality of a detected face. All scores are
// in [0,1]; FaceArea is in square pixels.
type QualityReport struct {
	DescriptorQuality  float64 `json:"descriptor_quality"`
	SizeQuality        float64 `json:"size_quality"`
	ResolutionQuality  float64 `json:"resolution_quality"`
	BlurQuality        float64 `json:"blur_quality"`
	PartialFaceQuality float64 `json:"partial_face_quality"`
	LandmarkQuality    float64 `json:"landmark_quality"`
	DetectionScore     float64 `json:"detection_score"`
	OverallQuality     float64 `json:"overall_quality"`
	FaceRatio          float64 `json:"face_ratio"`
	FaceArea           float64 `json:"face_area"`
}

// Photo is a gallery entry. Faces is replaced wholesale whenever the photo is
// analyzed again.
type Photo struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	FileName     string    `json:"file_name,omitempty"`
	LastModified time.Time `json:"last_modified"`
	Faces        []Face    `json:"faces,omitempty"`
}

// MatchMethod records how a match was scored.
type MatchMethod string

const (
	MethodFullAnalysis   MatchMethod = "full_analysis"   // descriptor, landmarks and geometry
	MethodDescriptorOnly MatchMethod = "descriptor_only" // no landmarks on one side
)

// MatchResult is a candidate face that cleared its adaptive thresholds.
type MatchResult struct {
	PhotoID    string        `json:"photo_id"`
	FaceID     string        `json:"face_id"`
	Similarity float64       `json:"similarity"`
	Confidence float64       `json:"confidence"`
	Quality    QualityReport `json:"quality"`
	Box        Box           `json:"box"`
	Method     MatchMethod   `json:"method"`
	Thresholds Thresholds    `json:"thresholds"`
}
