package faceindex

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// BatchResult summarizes one Initialize or UpdatePhotos call.
type BatchResult struct {
	Total    int `json:"total"`    // photos supplied
	Analyzed int `json:"analyzed"` // photos run through face extraction
	Skipped  int `json:"skipped"`  // photos whose cached entry was fresh
	Failed   int `json:"failed"`   // photos whose extraction failed, cached with no faces
	Faces    int `json:"faces"`    // faces found in analysed photos
}

// Initialize loads the store if needed, analyses every photo that is missing
// or stale and marks the index initialized. Cancelling ctx stops between
// photos; the work done so far is saved and ctx.Err() returned.
func (x *Index) Initialize(ctx context.Context, photos []facematch.Photo, onProgress ProgressFunc) (BatchResult, error) {
	x.batchMu.Lock()
	defer x.batchMu.Unlock()

	if err := x.ensureLoaded(ctx); err != nil {
		return BatchResult{}, err
	}

	res, err := x.analyze(ctx, photos, onProgress)
	if err != nil {
		return res, err
	}

	x.mu.Lock()
	wasInitialized := x.initialized
	x.initialized = true
	x.mu.Unlock()

	if !wasInitialized && res.Analyzed == 0 {
		// Persist an empty index so the next start counts as initialized.
		if err := x.save(ctx); err != nil {
			return res, err
		}
	}

	x.log.WithFields(logrus.Fields{
		"total":    res.Total,
		"analyzed": res.Analyzed,
		"skipped":  res.Skipped,
		"failed":   res.Failed,
	}).Info("face index initialized")
	return res, nil
}

// UpdatePhotos analyses the photos that are missing or stale. Fresh entries
// are left untouched and the extractor is not called for them. A completed
// update that saved entries marks the index initialized, as a reload of the
// same store would.
func (x *Index) UpdatePhotos(ctx context.Context, photos []facematch.Photo, onProgress ProgressFunc) (BatchResult, error) {
	x.batchMu.Lock()
	defer x.batchMu.Unlock()

	if err := x.ensureLoaded(ctx); err != nil {
		return BatchResult{}, err
	}
	res, err := x.analyze(ctx, photos, onProgress)
	if err != nil {
		return res, err
	}
	if res.Analyzed > 0 {
		x.mu.Lock()
		x.initialized = true
		x.mu.Unlock()
	}
	return res, nil
}

// RemovePhotos drops the given photos. Unknown IDs are ignored. Returns the
// number of entries removed.
func (x *Index) RemovePhotos(ctx context.Context, ids []string) (int, error) {
	x.batchMu.Lock()
	defer x.batchMu.Unlock()

	x.mu.Lock()
	removed := 0
	for _, id := range ids {
		if _, ok := x.entries[id]; ok {
			delete(x.entries, id)
			removed++
		}
	}
	if removed > 0 {
		x.vectorsDirty = true
	}
	x.mu.Unlock()

	if removed == 0 {
		return 0, nil
	}
	if err := x.save(ctx); err != nil {
		return removed, err
	}
	x.log.WithField("removed", removed).Info("photos removed from face index")
	return removed, nil
}

// OnPhotosAdded is called by the gallery owner when photos are added or
// modified.
func (x *Index) OnPhotosAdded(ctx context.Context, photos []facematch.Photo) (BatchResult, error) {
	return x.UpdatePhotos(ctx, photos, nil)
}

// OnPhotosRemoved is called by the gallery owner when photos are deleted.
func (x *Index) OnPhotosRemoved(ctx context.Context, ids []string) (int, error) {
	return x.RemovePhotos(ctx, ids)
}

// ensureLoaded reads the store once so a batch never overwrites entries it
// has not seen. Must be called with batchMu held.
func (x *Index) ensureLoaded(ctx context.Context) error {
	x.mu.RLock()
	loaded := x.loaded
	x.mu.RUnlock()
	if loaded {
		return nil
	}
	return x.load(ctx)
}

// stalePhotos returns, in input order, the photos needing analysis. A photo
// listed twice is analysed once.
func (x *Index) stalePhotos(photos []facematch.Photo) []facematch.Photo {
	x.mu.RLock()
	defer x.mu.RUnlock()

	seen := make(map[string]struct{}, len(photos))
	var out []facematch.Photo
	for _, p := range photos {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		if x.isStale(p) {
			out = append(out, p)
		}
	}
	return out
}

// analyze must be called with batchMu held.
func (x *Index) analyze(ctx context.Context, photos []facematch.Photo, onProgress ProgressFunc) (BatchResult, error) {
	stale := x.stalePhotos(photos)
	res := BatchResult{Total: len(photos), Skipped: len(photos) - len(stale)}

	pending := 0
	for i, p := range stale {
		if err := ctx.Err(); err != nil {
			return res, x.stop(ctx, err, pending)
		}

		log := x.log.WithField("photo_id", p.ID)
		faces, err := x.extractor.ExtractFile(ctx, p.Path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, x.stop(ctx, ctxErr, pending)
			}
			log.WithError(err).Warn("face extraction failed, caching photo with no faces")
			faces = nil
			res.Failed++
		}

		x.put(p, faces)
		res.Analyzed++
		res.Faces += len(faces)
		pending++
		log.WithField("faces", len(faces)).Debug("photo analysed")

		if pending >= constants.SaveInterval {
			if err := x.save(ctx); err != nil {
				return res, err
			}
			pending = 0
		}
		if onProgress != nil {
			onProgress(i+1, len(stale), fmt.Sprintf("Analyzed %s", displayName(p)))
		}
	}

	if pending > 0 {
		if err := x.save(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// stop saves unsaved work after cancellation and returns cause.
func (x *Index) stop(ctx context.Context, cause error, pending int) error {
	if pending > 0 {
		if err := x.save(context.WithoutCancel(ctx)); err != nil {
			x.log.WithError(err).Error("failed to save face index after cancellation")
		}
	}
	return cause
}

// put replaces the entry of p. Faces of a new photo go straight into a
// current vector graph; replacing an entry forces a rebuild.
func (x *Index) put(p facematch.Photo, faces []facematch.Face) {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, existed := x.entries[p.ID]
	x.entries[p.ID] = database.IndexEntry{
		Faces: faces,
		Metadata: database.EntryMetadata{
			LastModified: storedTime(p.LastModified),
			Path:         p.Path,
			FileName:     p.FileName,
		},
	}

	if existed || x.vectorsDirty {
		x.vectorsDirty = true
		return
	}
	for _, f := range faces {
		if f.Quality.OverallQuality < x.vectorMinQuality {
			continue
		}
		if err := x.vectors.Add(p.ID, f); err != nil {
			x.vectorsDirty = true
			return
		}
	}
}

func displayName(p facematch.Photo) string {
	if p.FileName != "" {
		return p.FileName
	}
	return p.ID
}
