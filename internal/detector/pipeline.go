package detector

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// DedupeIoU is the overlap above which detections from different scales are
// treated as the same face.
const DedupeIoU = 0.7

// Options controls scaling and face admission.
type Options struct {
	DetectionThreshold    float64
	MinFaceArea           float64
	MaxBlurScore          float64
	MinVisibleLandmarks   float64
	MinLandmarkConfidence float64
	MinDescriptorQuality  float64
	MultiScale            bool
	MaxScales             int
	ScaleStep             float64
	MaxImageSize          int
}

// OptionsFromConfig builds pipeline options from the loaded configuration.
func OptionsFromConfig(det config.DetectionConfig, match config.MatchingConfig) Options {
	return Options{
		DetectionThreshold:    det.DetectionThreshold,
		MinFaceArea:           det.MinFaceArea,
		MaxBlurScore:          det.MaxBlurScore,
		MinVisibleLandmarks:   det.MinVisibleLandmarks,
		MinLandmarkConfidence: match.MinLandmarkConfidence,
		MinDescriptorQuality:  match.MinDescriptorQuality,
		MultiScale:            det.MultiScale,
		MaxScales:             det.MaxScales,
		ScaleStep:             det.ScaleStep,
		MaxImageSize:          det.MaxImageSize,
	}
}

// Pipeline turns images into admitted, quality-scored faces.
type Pipeline struct {
	detector Detector
	opts     Options
	log      logrus.FieldLogger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewPipeline wraps a detector.
func NewPipeline(d Detector, opts Options, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Pipeline{
		detector: d,
		opts:     opts,
		log:      log,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		now:      time.Now,
	}
}

// ExtractFile decodes the image at path and extracts its faces.
func (p *Pipeline) ExtractFile(ctx context.Context, path string) ([]facematch.Face, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	return p.Extract(ctx, img)
}

// ExtractImage decodes image bytes and extracts their faces.
func (p *Pipeline) ExtractImage(ctx context.Context, data []byte) ([]facematch.Face, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return p.Extract(ctx, img)
}

// Extract runs detection on img and returns the admitted faces in source
// coordinates. A failing detector yields no faces; only cancellation is
// returned as an error.
func (p *Pipeline) Extract(ctx context.Context, img image.Image) ([]facematch.Face, error) {
	dims := Dimensions(img)
	if dims.Width == 0 || dims.Height == 0 {
		return nil, errors.New("image has no pixels")
	}

	working, fit := fitWithin(img, p.opts.MaxImageSize)

	var detected []facematch.Face
	for _, scale := range p.scales(Dimensions(working)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		faces, err := p.detector.DetectFaces(ctx, scaleImage(working, scale))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.log.WithError(err).WithField("scale", scale).Warn("face detection failed")
			continue
		}

		for _, f := range faces {
			if f.DetectionScore < p.opts.DetectionThreshold {
				continue
			}
			f = facematch.RescaleFace(f, scale*fit)
			f.Scale = scale
			detected = append(detected, f)
		}
	}

	detected = facematch.DedupeFaces(detected, DedupeIoU)

	admitted := make([]facematch.Face, 0, len(detected))
	for _, f := range detected {
		f.Quality = facematch.AssessQuality(f, dims)
		if reason := p.reject(f); reason != "" {
			p.log.WithFields(logrus.Fields{
				"reason":  reason,
				"score":   fmt.Sprintf("%.3f", f.DetectionScore),
				"quality": fmt.Sprintf("%.3f", f.Quality.OverallQuality),
			}).Debug("face rejected")
			continue
		}
		f.ID = p.newID()
		admitted = append(admitted, f)
	}
	return admitted, nil
}

// scales lists the detection scales for an image of the given size, largest
// first. Scales that would shrink the short side below
// constants.MinScaledImageSize are skipped.
func (p *Pipeline) scales(dims facematch.Dimensions) []float64 {
	if !p.opts.MultiScale || p.opts.MaxScales <= 1 {
		return []float64{1}
	}
	step := p.opts.ScaleStep
	if step <= 0 || step >= 1 {
		step = 0.75
	}

	short := float64(min(dims.Width, dims.Height))
	out := []float64{1}
	s := 1.0
	for len(out) < p.opts.MaxScales {
		s *= step
		if short*s < constants.MinScaledImageSize {
			break
		}
		out = append(out, math.Round(s*1e4)/1e4)
	}
	return out
}

// reject returns why a face is not admitted, or "" to keep it. Landmark
// checks only apply to faces that carry landmarks; the rest are matched on
// their descriptor alone.
func (p *Pipeline) reject(f facematch.Face) string {
	q := f.Quality
	switch {
	case !f.HasDescriptor():
		return "no descriptor"
	case q.FaceArea < p.opts.MinFaceArea:
		return "face too small"
	case f.HasLandmarks() && q.LandmarkQuality < p.opts.MinLandmarkConfidence:
		return "low landmark confidence"
	case f.HasLandmarks() && q.BlurQuality < 1-p.opts.MaxBlurScore:
		return "too blurry"
	case q.OverallQuality < p.opts.MinDescriptorQuality && q.PartialFaceQuality < p.opts.MinVisibleLandmarks:
		return "low quality"
	}
	return ""
}

func (p *Pipeline) newID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(p.now()), p.entropy).String()
}
