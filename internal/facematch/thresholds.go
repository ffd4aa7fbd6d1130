package facematch

import "math"

// Threshold floors. Relaxations never push a bar below these.
const (
	MinSimilarityThreshold = 0.2
	MinConfidenceThreshold = 0.2
	MinQualityThreshold    = 0.1
)

// Confidence bonuses for small or partial faces that still look convincing.
const (
	smallFaceBonus     = 0.10
	partialFaceBonus   = 0.05
	MaxConfidenceBonus = 0.15
)

// DescriptorOnlyConfidenceFactor discounts confidence when a comparison had
// no landmarks to back up the descriptor.
const DescriptorOnlyConfidenceFactor = 0.8

// Thresholds are the acceptance bars for one candidate face.
type Thresholds struct {
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality"`
}

// AdaptiveThresholds relaxes the configured bars for low-quality, small or
// partial faces. Relaxations compound multiplicatively and are floored.
func AdaptiveThresholds(q QualityReport, cfg MatchConfig) Thresholds {
	sim := cfg.SimilarityThreshold
	conf := cfg.ConfidenceThreshold
	qual := cfg.QualityThreshold

	switch {
	case q.OverallQuality < 0.3:
		sim *= 0.8
		conf *= 0.7
		qual *= 0.5
	case q.OverallQuality < 0.6:
		sim *= 0.9
		conf *= 0.85
		qual *= 0.8
	}

	switch {
	case q.FaceRatio < 0.005:
		sim *= 0.75
		conf *= 0.6
	case q.FaceRatio < 0.01:
		sim *= 0.85
		conf *= 0.75
	}

	if q.PartialFaceQuality < 0.7 {
		sim *= 0.8
		conf *= 0.7
	}

	return Thresholds{
		Similarity: math.Max(MinSimilarityThreshold, sim),
		Confidence: math.Max(MinConfidenceThreshold, conf),
		Quality:    math.Max(MinQualityThreshold, qual),
	}
}

// AdaptiveConfidence blends similarity with face quality. Similarity is
// trusted more when the quality signal is poor, and the two are weighed
// equally for high-quality faces.
func AdaptiveConfidence(similarity float64, q QualityReport) float64 {
	wSim, wQual := 0.6, 0.4
	switch {
	case q.OverallQuality < 0.3:
		wSim, wQual = 0.8, 0.2
	case q.OverallQuality > 0.8:
		wSim, wQual = 0.5, 0.5
	}
	confidence := similarity*wSim + q.OverallQuality*wQual

	var bonus float64
	if q.FaceRatio < 0.01 && q.SizeQuality > 0.5 {
		bonus += smallFaceBonus
	}
	if q.PartialFaceQuality < 0.8 && similarity > 0.7 {
		bonus += partialFaceBonus
	}
	confidence += math.Min(bonus, MaxConfidenceBonus)

	return clamp01(confidence)
}

// Verdict is the outcome of checking one scored candidate against its
// adaptive thresholds.
type Verdict struct {
	Confidence float64
	Thresholds Thresholds
	Accepted   bool
}

// Evaluate decides whether a candidate with the given similarity and quality
// is a match. Descriptor-only comparisons have their confidence discounted
// and skip the landmark-confidence floor, since there are no landmarks to
// measure.
func Evaluate(similarity float64, descriptorOnly bool, q QualityReport, cfg MatchConfig) Verdict {
	confidence := AdaptiveConfidence(similarity, q)
	if descriptorOnly {
		confidence *= DescriptorOnlyConfidenceFactor
	}
	th := AdaptiveThresholds(q, cfg)

	accepted := similarity >= th.Similarity &&
		confidence >= th.Confidence &&
		q.OverallQuality >= th.Quality
	if !descriptorOnly {
		accepted = accepted && q.LandmarkQuality >= cfg.MinLandmarkConfidence
	}

	return Verdict{Confidence: confidence, Thresholds: th, Accepted: accepted}
}
