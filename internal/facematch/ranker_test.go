package facematch

import (
	"reflect"
	"testing"
)

func TestRank_IdenticalFaceAccepted(t *testing.T) {
	ref := testFace("ref", oneHot(8, 0), 500, 500)
	cand := testFace("cand", oneHot(8, 0), 500, 500)

	results := NewRanker(DefaultMatchConfig(), nil).Rank(ref, []Candidate{{PhotoID: "p1", Face: cand}})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !almostEqual(results[0].Similarity, 1.0) {
		t.Errorf("similarity = %v, want ~1.0", results[0].Similarity)
	}
	if results[0].Method != MethodFullAnalysis {
		t.Errorf("method = %s, want %s", results[0].Method, MethodFullAnalysis)
	}
	if results[0].PhotoID != "p1" || results[0].FaceID != "cand" {
		t.Errorf("unexpected result identity: %+v", results[0])
	}
}

func TestRank_MaximalDistanceRejected(t *testing.T) {
	ref := descriptorOnlyFace("ref", []float32{0.5, 0.5, 0.5, 0.5}, 500, 500)
	cand := descriptorOnlyFace("cand", []float32{-0.5, -0.5, -0.5, -0.5}, 500, 500)

	if got := DescriptorSimilarity(ref.Descriptor, cand.Descriptor); !almostEqual(got, 0) {
		t.Fatalf("descriptor similarity = %v, want ~0", got)
	}

	results := NewRanker(DefaultMatchConfig(), nil).Rank(ref, []Candidate{{PhotoID: "p1", Face: cand}})
	if len(results) != 0 {
		t.Errorf("expected candidate to be rejected, got %+v", results)
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	ref := testFace("ref", oneHot(8, 0), 500, 500)

	results := NewRanker(DefaultMatchConfig(), nil).Rank(ref, nil)

	if results == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestRank_SkipsFacesWithoutDescriptor(t *testing.T) {
	ref := testFace("ref", oneHot(8, 0), 500, 500)
	broken := testFace("broken", nil, 500, 500)
	good := testFace("good", oneHot(8, 0), 500, 500)

	results := NewRanker(DefaultMatchConfig(), nil).Rank(ref, []Candidate{
		{PhotoID: "p1", Face: broken},
		{PhotoID: "p2", Face: good},
	})

	if len(results) != 1 || results[0].FaceID != "good" {
		t.Errorf("expected only the face with a descriptor, got %+v", results)
	}
}

func TestRank_CandidateWithoutLandmarksUsesDescriptorOnly(t *testing.T) {
	ref := testFace("ref", oneHot(8, 0), 500, 500)
	cand := descriptorOnlyFace("cand", oneHot(8, 0), 500, 500)

	results := NewRanker(DefaultMatchConfig(), nil).Rank(ref, []Candidate{{PhotoID: "p1", Face: cand}})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Method != MethodDescriptorOnly {
		t.Errorf("method = %s, want %s", results[0].Method, MethodDescriptorOnly)
	}
}

func TestRank_DeduplicatesOverlappingBoxes(t *testing.T) {
	ref := testFace("ref", oneHot(8, 0), 500, 500)
	weak := testFace("weak", oneHot(8, 0), 500, 500)
	weak.DetectionScore = 0.5
	strong := testFace("strong", oneHot(8, 0), 502, 502)
	strong.DetectionScore = 0.95
	elsewhere := testFace("elsewhere", oneHot(8, 0), 500, 500)

	results := NewRanker(DefaultMatchConfig(), nil).Rank(ref, []Candidate{
		{PhotoID: "p1", Face: weak},
		{PhotoID: "p1", Face: strong},
		{PhotoID: "p2", Face: elsewhere}, // same box, different photo
	})

	ids := map[string]bool{}
	for _, r := range results {
		ids[r.FaceID] = true
	}
	if ids["weak"] {
		t.Error("duplicate with the lower detection score should be merged away")
	}
	if !ids["strong"] || !ids["elsewhere"] {
		t.Errorf("expected strong and elsewhere to survive, got %v", ids)
	}
}

func TestRank_OrderAndLimit(t *testing.T) {
	ref := testFace("ref", []float32{1, 0, 0, 0}, 500, 500)
	cands := []Candidate{
		{PhotoID: "far", Face: testFace("far", []float32{0.8, 0.3, 0, 0}, 500, 500)},
		{PhotoID: "same", Face: testFace("same", []float32{1, 0, 0, 0}, 500, 500)},
		{PhotoID: "near", Face: testFace("near", []float32{0.95, 0.1, 0, 0}, 500, 500)},
	}

	all := NewRanker(DefaultMatchConfig(), nil).Rank(ref, cands)
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}
	for i, want := range []string{"same", "near", "far"} {
		if all[i].FaceID != want {
			t.Errorf("result[%d] = %s, want %s", i, all[i].FaceID, want)
		}
	}

	cfg := DefaultMatchConfig()
	cfg.MaxResults = 2
	limited := NewRanker(cfg, nil).Rank(ref, cands)
	if len(limited) != 2 || limited[0].FaceID != "same" {
		t.Errorf("expected top 2 results, got %+v", limited)
	}
}

func TestRank_Deterministic(t *testing.T) {
	ref := testFace("ref", []float32{0.3, 0.2, 0.9, 0.1}, 500, 500)
	var cands []Candidate
	for i, d := range [][]float32{
		{0.3, 0.2, 0.9, 0.1},
		{0.2, 0.2, 0.8, 0.2},
		{0.3, 0.2, 0.9, 0.1},
		{0.4, 0.1, 0.7, 0.3},
	} {
		id := string(rune('a' + i))
		cands = append(cands, Candidate{PhotoID: id, Face: testFace(id, d, 500, 500)})
	}
	r := NewRanker(DefaultMatchConfig(), nil)

	first := r.Rank(ref, cands)
	for i := 0; i < 5; i++ {
		if again := r.Rank(ref, cands); !reflect.DeepEqual(first, again) {
			t.Fatal("ranking changed between runs")
		}
	}
	// a and c are identical; insertion order breaks the tie.
	if first[0].FaceID != "a" || first[1].FaceID != "c" {
		t.Errorf("expected tie broken by insertion order, got %s then %s", first[0].FaceID, first[1].FaceID)
	}
}

func TestSortResults_TieBreaks(t *testing.T) {
	results := []MatchResult{
		{FaceID: "1", Similarity: 0.8, Confidence: 0.5},
		{FaceID: "2", Similarity: 0.9, Confidence: 0.5},
		{FaceID: "3", Similarity: 0.8, Confidence: 0.7},
		{FaceID: "4", Similarity: 0.8, Confidence: 0.5},
	}

	SortResults(results)

	var got []string
	for _, r := range results {
		got = append(got, r.FaceID)
	}
	if want := []string{"2", "3", "1", "4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestRankPerPhoto_KeepsBestFace(t *testing.T) {
	ref := testFace("ref", []float32{1, 0, 0, 0}, 500, 500)
	cands := []Candidate{
		{PhotoID: "p1", Face: testFace("p1-near", []float32{0.95, 0.1, 0, 0}, 200, 200)},
		{PhotoID: "p1", Face: testFace("p1-same", []float32{1, 0, 0, 0}, 700, 700)},
		{PhotoID: "p2", Face: testFace("p2-far", []float32{0.8, 0.3, 0, 0}, 500, 500)},
	}

	results := NewRanker(DefaultMatchConfig(), nil).RankPerPhoto(ref, cands)

	if len(results) != 2 {
		t.Fatalf("expected one result per photo, got %d", len(results))
	}
	if results[0].FaceID != "p1-same" || results[1].FaceID != "p2-far" {
		t.Errorf("unexpected per-photo results: %s, %s", results[0].FaceID, results[1].FaceID)
	}
}

func TestBestMatch(t *testing.T) {
	ref := testFace("ref", []float32{1, 0, 0, 0}, 500, 500)
	r := NewRanker(DefaultMatchConfig(), nil)

	best, ok := r.BestMatch(ref, "p1", []Face{
		testFace("a", []float32{0.9, 0.2, 0, 0}, 200, 200),
		testFace("b", []float32{1, 0, 0, 0}, 700, 700),
	})
	if !ok || best.FaceID != "b" {
		t.Errorf("BestMatch = %+v, %v; want face b", best, ok)
	}

	if _, ok := r.BestMatch(ref, "p2", nil); ok {
		t.Error("expected no match for photo without faces")
	}
}

func TestFindSimilarFaces(t *testing.T) {
	photos := []Photo{
		{ID: "p1", Faces: []Face{testFace("p1-a", oneHot(8, 0), 500, 500)}},
		{ID: "p2", Faces: []Face{testFace("p2-a", []float32{-1, 0, 0, 0, 0, 0, 0, 0}, 500, 500)}},
		{ID: "p3"},
	}

	results := NewRanker(DefaultMatchConfig(), nil).FindSimilarFaces(oneHot(8, 0), photos)

	if len(results) != 1 || results[0].PhotoID != "p1" {
		t.Fatalf("expected only p1 to match, got %+v", results)
	}
	if results[0].Method != MethodDescriptorOnly {
		t.Errorf("method = %s, want %s", results[0].Method, MethodDescriptorOnly)
	}
	want := AdaptiveConfidence(results[0].Similarity, results[0].Quality) * DescriptorOnlyConfidenceFactor
	if !almostEqual(results[0].Confidence, want) {
		t.Errorf("confidence = %v, want discounted %v", results[0].Confidence, want)
	}
}
