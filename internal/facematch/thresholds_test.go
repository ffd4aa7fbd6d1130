package facematch

import "testing"

func TestAdaptiveThresholds(t *testing.T) {
	base := MatchConfig{SimilarityThreshold: 0.5, ConfidenceThreshold: 0.5, QualityThreshold: 0.5}

	tests := []struct {
		name    string
		quality QualityReport
		want    Thresholds
	}{
		{
			name:    "high quality large face",
			quality: QualityReport{OverallQuality: 0.9, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:    Thresholds{Similarity: 0.5, Confidence: 0.5, Quality: 0.5},
		},
		{
			name:    "between medium and high is untouched",
			quality: QualityReport{OverallQuality: 0.7, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:    Thresholds{Similarity: 0.5, Confidence: 0.5, Quality: 0.5},
		},
		{
			name:    "medium quality",
			quality: QualityReport{OverallQuality: 0.45, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:    Thresholds{Similarity: 0.45, Confidence: 0.425, Quality: 0.4},
		},
		{
			name:    "low quality",
			quality: QualityReport{OverallQuality: 0.2, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:    Thresholds{Similarity: 0.4, Confidence: 0.35, Quality: 0.25},
		},
		{
			name:    "small face",
			quality: QualityReport{OverallQuality: 0.9, FaceRatio: 0.008, PartialFaceQuality: 1},
			want:    Thresholds{Similarity: 0.425, Confidence: 0.375, Quality: 0.5},
		},
		{
			name:    "very small face",
			quality: QualityReport{OverallQuality: 0.9, FaceRatio: 0.004, PartialFaceQuality: 1},
			want:    Thresholds{Similarity: 0.375, Confidence: 0.3, Quality: 0.5},
		},
		{
			name:    "partial face",
			quality: QualityReport{OverallQuality: 0.9, FaceRatio: 0.05, PartialFaceQuality: 0.6},
			want:    Thresholds{Similarity: 0.4, Confidence: 0.35, Quality: 0.5},
		},
		{
			name:    "everything stacks down to the floors",
			quality: QualityReport{OverallQuality: 0.1, FaceRatio: 0.001, PartialFaceQuality: 0.2},
			want:    Thresholds{Similarity: 0.24, Confidence: 0.2, Quality: 0.25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AdaptiveThresholds(tt.quality, base)
			if !almostEqual(got.Similarity, tt.want.Similarity) ||
				!almostEqual(got.Confidence, tt.want.Confidence) ||
				!almostEqual(got.Quality, tt.want.Quality) {
				t.Errorf("AdaptiveThresholds = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAdaptiveThresholds_NeverBelowFloors(t *testing.T) {
	bases := []MatchConfig{
		{},
		{SimilarityThreshold: 0.1, ConfidenceThreshold: 0.1, QualityThreshold: 0.05},
		DefaultMatchConfig(),
		{SimilarityThreshold: 1, ConfidenceThreshold: 1, QualityThreshold: 1},
	}
	values := []float64{0, 0.001, 0.004, 0.009, 0.1, 0.29, 0.3, 0.59, 0.6, 0.69, 0.7, 0.8, 0.81, 1}

	for _, base := range bases {
		for _, overall := range values {
			for _, ratio := range values {
				for _, partial := range values {
					q := QualityReport{OverallQuality: overall, FaceRatio: ratio, PartialFaceQuality: partial}
					got := AdaptiveThresholds(q, base)
					if got.Similarity < MinSimilarityThreshold ||
						got.Confidence < MinConfidenceThreshold ||
						got.Quality < MinQualityThreshold {
						t.Fatalf("thresholds %+v below floors for quality %+v base %+v", got, q, base)
					}
				}
			}
		}
	}
}

func TestAdaptiveConfidence(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		quality    QualityReport
		want       float64
	}{
		{
			name:       "default weights",
			similarity: 0.8,
			quality:    QualityReport{OverallQuality: 0.5, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:       0.8*0.6 + 0.5*0.4,
		},
		{
			name:       "low quality trusts similarity",
			similarity: 0.8,
			quality:    QualityReport{OverallQuality: 0.2, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:       0.8*0.8 + 0.2*0.2,
		},
		{
			name:       "high quality balances weights",
			similarity: 0.6,
			quality:    QualityReport{OverallQuality: 0.9, FaceRatio: 0.05, PartialFaceQuality: 1},
			want:       0.6*0.5 + 0.9*0.5,
		},
		{
			name:       "small face bonus",
			similarity: 0.5,
			quality:    QualityReport{OverallQuality: 0.5, FaceRatio: 0.005, SizeQuality: 0.8, PartialFaceQuality: 1},
			want:       0.5*0.6 + 0.5*0.4 + 0.10,
		},
		{
			name:       "small face without size quality gets nothing",
			similarity: 0.5,
			quality:    QualityReport{OverallQuality: 0.5, FaceRatio: 0.005, SizeQuality: 0.4, PartialFaceQuality: 1},
			want:       0.5*0.6 + 0.5*0.4,
		},
		{
			name:       "partial face bonus",
			similarity: 0.75,
			quality:    QualityReport{OverallQuality: 0.5, FaceRatio: 0.05, PartialFaceQuality: 0.6},
			want:       0.75*0.6 + 0.5*0.4 + 0.05,
		},
		{
			name:       "both bonuses capped",
			similarity: 0.75,
			quality:    QualityReport{OverallQuality: 0.5, FaceRatio: 0.005, SizeQuality: 0.8, PartialFaceQuality: 0.6},
			want:       0.75*0.6 + 0.5*0.4 + MaxConfidenceBonus,
		},
		{
			name:       "clamped to one",
			similarity: 1.0,
			quality:    QualityReport{OverallQuality: 1.0, FaceRatio: 0.005, SizeQuality: 0.8, PartialFaceQuality: 0.6},
			want:       1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AdaptiveConfidence(tt.similarity, tt.quality); !almostEqual(got, tt.want) {
				t.Errorf("AdaptiveConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_SmallLowQualityFaceAccepted(t *testing.T) {
	cfg := MatchConfig{
		SimilarityThreshold:   0.4,
		ConfidenceThreshold:   0.4,
		QualityThreshold:      0.3,
		MinLandmarkConfidence: 0.5,
	}
	q := QualityReport{
		OverallQuality:     0.25,
		FaceRatio:          0.003,
		SizeQuality:        sizeQuality(0.003),
		PartialFaceQuality: 1.0,
		LandmarkQuality:    1.0,
	}

	v := Evaluate(0.35, false, q, cfg)

	if !almostEqual(v.Thresholds.Similarity, 0.4*0.8*0.75) {
		t.Errorf("similarity threshold = %v, want %v", v.Thresholds.Similarity, 0.4*0.8*0.75)
	}
	if !v.Accepted {
		t.Errorf("expected candidate to be accepted, verdict %+v", v)
	}
}

func TestEvaluate_Rejections(t *testing.T) {
	cfg := DefaultMatchConfig()
	good := QualityReport{OverallQuality: 0.7, FaceRatio: 0.05, PartialFaceQuality: 1, LandmarkQuality: 1}

	tests := []struct {
		name           string
		similarity     float64
		descriptorOnly bool
		quality        QualityReport
		accepted       bool
	}{
		{"clear match", 0.9, false, good, true},
		{"low similarity", 0.3, false, good, false},
		{"poor landmarks", 0.9, false, QualityReport{OverallQuality: 0.7, FaceRatio: 0.05, PartialFaceQuality: 1, LandmarkQuality: 0.4}, false},
		{"descriptor-only skips landmark floor", 0.9, true, QualityReport{OverallQuality: 0.7, FaceRatio: 0.05, PartialFaceQuality: 1}, true},
		{"quality under threshold", 0.9, false, QualityReport{OverallQuality: 0.05, FaceRatio: 0.05, PartialFaceQuality: 1, LandmarkQuality: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.similarity, tt.descriptorOnly, tt.quality, cfg)
			if v.Accepted != tt.accepted {
				t.Errorf("accepted = %v, want %v (verdict %+v)", v.Accepted, tt.accepted, v)
			}
		})
	}
}

func TestEvaluate_DescriptorOnlyDiscount(t *testing.T) {
	q := QualityReport{OverallQuality: 0.7, FaceRatio: 0.05, PartialFaceQuality: 1, LandmarkQuality: 1}

	full := Evaluate(0.8, false, q, DefaultMatchConfig())
	desc := Evaluate(0.8, true, q, DefaultMatchConfig())

	if !almostEqual(desc.Confidence, full.Confidence*DescriptorOnlyConfidenceFactor) {
		t.Errorf("descriptor-only confidence = %v, want %v", desc.Confidence, full.Confidence*DescriptorOnlyConfidenceFactor)
	}
}

func TestMatchConfig_Normalize(t *testing.T) {
	got := MatchConfig{
		SimilarityThreshold:   -0.5,
		ConfidenceThreshold:   1.7,
		QualityThreshold:      0.3,
		MinLandmarkConfidence: 2,
		MaxResults:            -1,
	}.Normalize()

	want := MatchConfig{
		SimilarityThreshold:   0,
		ConfidenceThreshold:   1,
		QualityThreshold:      0.3,
		MinLandmarkConfidence: 1,
		MaxResults:            DefaultMaxResults,
	}
	if got != want {
		t.Errorf("Normalize = %+v, want %+v", got, want)
	}
}

func TestMatchConfig_Merge(t *testing.T) {
	got := DefaultMatchConfig().Merge(MatchConfig{SimilarityThreshold: 0.6, MaxResults: 5})

	if got.SimilarityThreshold != 0.6 || got.MaxResults != 5 {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("unset field overwritten: %+v", got)
	}
}
