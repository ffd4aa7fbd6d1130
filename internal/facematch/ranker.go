package facematch

import (
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// Candidate is a face to be ranked, tagged with the photo it belongs to.
type Candidate struct {
	PhotoID string
	Face    Face
}

// CandidatesFromPhotos flattens photos into candidates in photo order.
func CandidatesFromPhotos(photos []Photo) []Candidate {
	var out []Candidate
	for _, p := range photos {
		for _, f := range p.Faces {
			out = append(out, Candidate{PhotoID: p.ID, Face: f})
		}
	}
	return out
}

// Ranker scores candidate faces against a reference and orders the matches.
type Ranker struct {
	cfg MatchConfig
	log logrus.FieldLogger
}

// NewRanker creates a ranker with the given base thresholds. A nil logger
// discards warnings about skipped candidates.
func NewRanker(cfg MatchConfig, log logrus.FieldLogger) *Ranker {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Ranker{cfg: cfg.Normalize(), log: log}
}

// Config returns the normalized configuration the ranker applies.
func (r *Ranker) Config() MatchConfig {
	return r.cfg
}

// Rank returns the candidates that match the reference, best first, limited
// to MaxResults. An empty candidate set yields an empty, non-nil slice.
func (r *Ranker) Rank(reference Face, candidates []Candidate) []MatchResult {
	return truncate(r.rank(reference, candidates), r.cfg.MaxResults)
}

// RankPerPhoto is Rank with at most one result per photo, its best face.
func (r *Ranker) RankPerPhoto(reference Face, candidates []Candidate) []MatchResult {
	return truncate(BestPerPhoto(r.rank(reference, candidates)), r.cfg.MaxResults)
}

// FindSimilarFaces ranks every face of every photo against a bare reference
// descriptor. Without reference landmarks all comparisons are
// descriptor-only.
func (r *Ranker) FindSimilarFaces(descriptor []float32, photos []Photo) []MatchResult {
	return r.Rank(Face{Descriptor: descriptor}, CandidatesFromPhotos(photos))
}

// BestMatch returns the best-matching face of a single photo, if any.
func (r *Ranker) BestMatch(reference Face, photoID string, faces []Face) (MatchResult, bool) {
	cands := make([]Candidate, len(faces))
	for i, f := range faces {
		cands[i] = Candidate{PhotoID: photoID, Face: f}
	}
	results := r.rank(reference, cands)
	if len(results) == 0 {
		return MatchResult{}, false
	}
	return results[0], true
}

func (r *Ranker) rank(reference Face, candidates []Candidate) []MatchResult {
	results := make([]MatchResult, 0)
	if !reference.HasDescriptor() {
		r.log.Warn("reference face has no descriptor, nothing to rank")
		return results
	}

	for _, c := range dedupeCandidates(candidates) {
		if !c.Face.HasDescriptor() {
			r.log.WithFields(logrus.Fields{"photo_id": c.PhotoID, "face_id": c.Face.ID}).
				Warn("skipping candidate face without descriptor")
			continue
		}
		if reference.HasLandmarks() && !c.Face.HasLandmarks() {
			r.log.WithFields(logrus.Fields{"photo_id": c.PhotoID, "face_id": c.Face.ID}).
				Warn("candidate face has no landmarks, comparing descriptors only")
		}

		cmp := Compare(reference, c.Face)
		v := Evaluate(cmp.Similarity, cmp.DescriptorOnly, c.Face.Quality, r.cfg)
		if !v.Accepted {
			continue
		}

		method := MethodFullAnalysis
		if cmp.DescriptorOnly {
			method = MethodDescriptorOnly
		}
		results = append(results, MatchResult{
			PhotoID:    c.PhotoID,
			FaceID:     c.Face.ID,
			Similarity: cmp.Similarity,
			Confidence: v.Confidence,
			Quality:    c.Face.Quality,
			Box:        c.Face.Box,
			Method:     method,
			Thresholds: v.Thresholds,
		})
	}

	SortResults(results)
	return results
}

// SortResults orders results by similarity, then confidence, both
// descending. Equal results keep their relative order.
func SortResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Confidence > results[j].Confidence
	})
}

// BestPerPhoto keeps the first result of every photo. Results must already
// be sorted best first.
func BestPerPhoto(results []MatchResult) []MatchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]MatchResult, 0, len(results))
	for _, res := range results {
		if _, ok := seen[res.PhotoID]; ok {
			continue
		}
		seen[res.PhotoID] = struct{}{}
		out = append(out, res)
	}
	return out
}

// dedupeCandidates merges overlapping boxes within the same photo in case
// detection upstream did not.
func dedupeCandidates(candidates []Candidate) []Candidate {
	return mergeOverlapping(candidates, DuplicateIoUThreshold,
		func(c Candidate) Box { return c.Face.Box },
		func(c Candidate) float64 { return c.Face.DetectionScore },
		func(a, b Candidate) bool { return a.PhotoID == b.PhotoID },
	)
}

func truncate(results []MatchResult, n int) []MatchResult {
	if n > 0 && len(results) > n {
		return results[:n]
	}
	return results
}
