package faceindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// Reference is the face to search for. Descriptor wins over Data, Data over
// Path.
type Reference struct {
	Descriptor []float32 // a precomputed descriptor, matched descriptor-only
	Data       []byte    // encoded image bytes
	Path       string    // image file
}

// SearchOptions adjusts one search. Zero Match fields keep the index's
// configured thresholds.
type SearchOptions struct {
	Match      facematch.MatchConfig
	OnProgress ProgressFunc
}

// Search finds the best-quality face in the reference and returns at most
// one match per indexed photo, best first.
func (x *Index) Search(ctx context.Context, ref Reference, opts SearchOptions) ([]facematch.MatchResult, error) {
	x.mu.RLock()
	initialized := x.initialized
	x.mu.RUnlock()
	if !initialized {
		return nil, ErrIndexNotInitialized
	}

	reference, err := x.referenceFace(ctx, ref)
	if err != nil {
		return nil, err
	}

	cfg := x.match.Merge(opts.Match).Normalize()
	ranker := facematch.NewRanker(cfg, x.log)
	photos := x.Photos()

	results := make([]facematch.MatchResult, 0)
	for i, p := range photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res, ok := ranker.BestMatch(reference, p.ID, p.Faces); ok {
			results = append(results, res)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(photos), fmt.Sprintf("Compared %s", displayName(p)))
		}
	}

	facematch.SortResults(results)
	if cfg.MaxResults > 0 && len(results) > cfg.MaxResults {
		results = results[:cfg.MaxResults]
	}

	x.log.WithFields(logrus.Fields{
		"photos":  len(photos),
		"matches": len(results),
	}).Info("face search finished")
	return results, nil
}

// FindSimilarFaces ranks every indexed face against a bare descriptor.
// Unlike Search, several faces of one photo may match.
func (x *Index) FindSimilarFaces(descriptor []float32, match facematch.MatchConfig) []facematch.MatchResult {
	cfg := x.match.Merge(match).Normalize()
	return facematch.NewRanker(cfg, x.log).FindSimilarFaces(descriptor, x.Photos())
}

// Nearest returns the n indexed faces whose descriptors are closest to the
// reference face. A non-positive n uses the configured default.
func (x *Index) Nearest(ctx context.Context, ref Reference, n int) ([]database.Neighbor, error) {
	x.mu.RLock()
	initialized := x.initialized
	x.mu.RUnlock()
	if !initialized {
		return nil, ErrIndexNotInitialized
	}

	reference, err := x.referenceFace(ctx, ref)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = x.maxNeighbors
	}

	neighbors, err := x.nearest(ctx, reference.Descriptor, n)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]database.Neighbor, 0, len(neighbors))
	for _, nb := range neighbors {
		if _, ok := x.entries[nb.PhotoID]; ok {
			out = append(out, nb)
		}
	}
	return out, nil
}

// nearest asks the store first when it can search descriptors itself and
// falls back to the in-memory graph.
func (x *Index) nearest(ctx context.Context, descriptor []float32, n int) ([]database.Neighbor, error) {
	if finder, ok := x.repo.(database.NeighborFinder); ok {
		neighbors, err := finder.Nearest(ctx, descriptor, n, x.vectorMinQuality)
		if err == nil {
			return neighbors, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		x.log.WithError(err).Warn("store nearest lookup failed, using vector index")
	}

	x.ensureVectors()
	neighbors, err := x.vectors.Nearest(descriptor, n)
	if err != nil {
		return nil, fmt.Errorf("vector lookup failed: %w", err)
	}
	return neighbors, nil
}

// referenceFace resolves the reference into the single face to search with.
func (x *Index) referenceFace(ctx context.Context, ref Reference) (facematch.Face, error) {
	if len(ref.Descriptor) > 0 {
		return facematch.Face{Descriptor: ref.Descriptor}, nil
	}

	var faces []facematch.Face
	var err error
	switch {
	case len(ref.Data) > 0:
		faces, err = x.extractor.ExtractImage(ctx, ref.Data)
	case ref.Path != "":
		faces, err = x.extractor.ExtractFile(ctx, ref.Path)
	default:
		return facematch.Face{}, fmt.Errorf("%w: no image given", ErrReferenceUnreadable)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return facematch.Face{}, err
		}
		return facematch.Face{}, fmt.Errorf("%w: %v", ErrReferenceUnreadable, err)
	}

	best, ok := bestFace(faces)
	if !ok {
		return facematch.Face{}, ErrNoReferenceFace
	}
	return best, nil
}

// bestFace returns the face with the highest overall quality; the earlier
// face wins ties. Faces without a descriptor are ignored.
func bestFace(faces []facematch.Face) (facematch.Face, bool) {
	usable := make([]facematch.Face, 0, len(faces))
	for _, f := range faces {
		if f.HasDescriptor() {
			usable = append(usable, f)
		}
	}
	if len(usable) == 0 {
		return facematch.Face{}, false
	}
	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Quality.OverallQuality > usable[j].Quality.OverallQuality
	})
	return usable[0], true
}
