package facematch

import "math"

// Default match settings.
const (
	DefaultSimilarityThreshold   = 0.4
	DefaultConfidenceThreshold   = 0.4
	DefaultQualityThreshold      = 0.2
	DefaultMinLandmarkConfidence = 0.5
	DefaultMaxResults            = 100
)

// MatchConfig holds the base thresholds for one search. It is merged once at
// the API boundary and passed by value from there on.
type MatchConfig struct {
	SimilarityThreshold   float64 `json:"similarity_threshold"`
	ConfidenceThreshold   float64 `json:"confidence_threshold"`
	QualityThreshold      float64 `json:"quality_threshold"`
	MinLandmarkConfidence float64 `json:"min_landmark_confidence"`
	MaxResults            int     `json:"max_results"`
}

// DefaultMatchConfig returns the stock thresholds.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		SimilarityThreshold:   DefaultSimilarityThreshold,
		ConfidenceThreshold:   DefaultConfidenceThreshold,
		QualityThreshold:      DefaultQualityThreshold,
		MinLandmarkConfidence: DefaultMinLandmarkConfidence,
		MaxResults:            DefaultMaxResults,
	}
}

// Normalize clamps thresholds into [0,1] and replaces a non-positive result
// limit with the default. Out-of-range input is corrected, not rejected.
func (c MatchConfig) Normalize() MatchConfig {
	c.SimilarityThreshold = clampThreshold(c.SimilarityThreshold, DefaultSimilarityThreshold)
	c.ConfidenceThreshold = clampThreshold(c.ConfidenceThreshold, DefaultConfidenceThreshold)
	c.QualityThreshold = clampThreshold(c.QualityThreshold, DefaultQualityThreshold)
	c.MinLandmarkConfidence = clampThreshold(c.MinLandmarkConfidence, DefaultMinLandmarkConfidence)
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	return c
}

// Merge overlays the non-zero fields of o onto c.
func (c MatchConfig) Merge(o MatchConfig) MatchConfig {
	if o.SimilarityThreshold != 0 {
		c.SimilarityThreshold = o.SimilarityThreshold
	}
	if o.ConfidenceThreshold != 0 {
		c.ConfidenceThreshold = o.ConfidenceThreshold
	}
	if o.QualityThreshold != 0 {
		c.QualityThreshold = o.QualityThreshold
	}
	if o.MinLandmarkConfidence != 0 {
		c.MinLandmarkConfidence = o.MinLandmarkConfidence
	}
	if o.MaxResults != 0 {
		c.MaxResults = o.MaxResults
	}
	return c
}

func clampThreshold(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return clamp01(v)
}
