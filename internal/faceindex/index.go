// Package faceindex keeps the incremental, persisted cache of faces found in
// a photo gallery and searches it for a reference face.
package faceindex

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// Extractor finds the faces in an image. detector.Pipeline implements it.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) ([]facematch.Face, error)
	ExtractImage(ctx context.Context, data []byte) ([]facematch.Face, error)
}

// ProgressFunc is called after each photo of a batch or search.
type ProgressFunc func(current, total int, message string)

// Index maps photo IDs to the faces extracted from them. Batches are
// serialized; searches run against the entries present when they start.
type Index struct {
	repo      database.Repository
	extractor Extractor
	log       logrus.FieldLogger
	match     facematch.MatchConfig

	vectorMinQuality float64
	vectorPath       string
	maxNeighbors     int

	batchMu sync.Mutex

	mu           sync.RWMutex
	entries      map[string]database.IndexEntry
	loaded       bool
	initialized  bool
	version      int
	lastUpdated  time.Time
	vectors      *database.VectorIndex
	vectorsDirty bool
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log logrus.FieldLogger) Option {
	return func(x *Index) {
		if log != nil {
			x.log = log
		}
	}
}

// WithMatchConfig sets the base thresholds searches start from.
func WithMatchConfig(cfg facematch.MatchConfig) Option {
	return func(x *Index) {
		x.match = cfg.Normalize()
	}
}

// WithVectorIndex sets which faces go into the nearest-descriptor graph and
// how many neighbours a lookup returns by default. A non-empty path persists
// the graph there after every save.
func WithVectorIndex(minQuality float64, maxNeighbors int, path string) Option {
	return func(x *Index) {
		x.vectorMinQuality = minQuality
		x.maxNeighbors = maxNeighbors
		x.vectorPath = path
	}
}

// New creates an empty index backed by repo. Call Load or Initialize before
// searching.
func New(repo database.Repository, extractor Extractor, opts ...Option) *Index {
	l := logrus.New()
	l.SetOutput(io.Discard)

	x := &Index{
		repo:         repo,
		extractor:    extractor,
		log:          l,
		match:        facematch.DefaultMatchConfig(),
		maxNeighbors: 10,
		entries:      make(map[string]database.IndexEntry),
		vectors:      database.NewVectorIndex(),
		vectorsDirty: true,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Load reads the persisted snapshot. A missing, corrupt or outdated store
// leaves the index empty and uninitialized so the next Initialize rebuilds
// it; any other read failure is returned.
func (x *Index) Load(ctx context.Context) error {
	x.batchMu.Lock()
	defer x.batchMu.Unlock()
	return x.load(ctx)
}

func (x *Index) load(ctx context.Context) error {
	snapshot, err := x.repo.Load(ctx)
	if err != nil && !database.IsRecoverable(err) {
		return fmt.Errorf("failed to load face index: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.loaded = true
	x.vectorsDirty = true

	if err != nil {
		x.log.WithError(err).Warn("face index store unusable, starting empty")
		x.entries = make(map[string]database.IndexEntry)
		x.initialized = false
		return nil
	}

	x.entries = snapshot.EntryMap()
	x.initialized = true
	x.version = snapshot.Version
	x.lastUpdated = snapshot.SavedAt
	x.log.WithFields(logrus.Fields{
		"photos": len(x.entries),
		"faces":  snapshot.FaceCount(),
	}).Info("face index loaded")

	if x.vectorPath != "" {
		if _, err := x.vectors.Load(x.vectorPath); err != nil {
			x.log.WithError(err).Warn("failed to load vector index, rebuilding")
		} else if x.vectors.Len() > 0 {
			x.vectorsDirty = false
		}
	}
	return nil
}

// NeedsUpdate reports whether the index is uninitialized or any of photos is
// missing from it or was modified after it was analysed.
func (x *Index) NeedsUpdate(photos []facematch.Photo) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if !x.initialized {
		return true
	}
	for _, p := range photos {
		if x.isStale(p) {
			return true
		}
	}
	return false
}

// isStale must be called with mu held.
func (x *Index) isStale(p facematch.Photo) bool {
	entry, ok := x.entries[p.ID]
	if !ok {
		return true
	}
	return entry.Metadata.LastModified.Before(storedTime(p.LastModified))
}

// storedTime drops the precision that stores cannot keep. Postgres
// timestamps hold microseconds; file systems report nanoseconds.
func storedTime(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}

// Status describes the index.
type Status struct {
	Initialized bool      `json:"initialized"`
	PhotoCount  int       `json:"photo_count"`
	FaceCount   int       `json:"face_count"`
	VectorCount int       `json:"vector_count"`
	Version     int       `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

// Status returns a summary of the current index contents.
func (x *Index) Status() Status {
	x.mu.RLock()
	defer x.mu.RUnlock()

	faces := 0
	for _, e := range x.entries {
		faces += len(e.Faces)
	}
	s := Status{
		Initialized: x.initialized,
		PhotoCount:  len(x.entries),
		FaceCount:   faces,
		Version:     x.version,
		LastUpdated: x.lastUpdated,
	}
	if !x.vectorsDirty {
		s.VectorCount = x.vectors.Len()
	}
	return s
}

// Photos returns the indexed photos with their faces, ordered by ID.
func (x *Index) Photos() []facematch.Photo {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.photosLocked()
}

// Entry returns the cached entry of one photo.
func (x *Index) Entry(photoID string) (database.IndexEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[photoID]
	return e, ok
}

func (x *Index) photosLocked() []facematch.Photo {
	ids := make([]string, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]facematch.Photo, 0, len(ids))
	for _, id := range ids {
		e := x.entries[id]
		out = append(out, facematch.Photo{
			ID:           id,
			Path:         e.Metadata.Path,
			FileName:     e.Metadata.FileName,
			LastModified: e.Metadata.LastModified,
			Faces:        e.Faces,
		})
	}
	return out
}

// save persists the current entries and, when configured, the vector graph.
func (x *Index) save(ctx context.Context) error {
	x.mu.RLock()
	snapshot := database.NewSnapshot(x.entries)
	x.mu.RUnlock()

	if err := x.repo.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save face index: %w", err)
	}

	x.mu.Lock()
	x.version = snapshot.Version
	x.lastUpdated = snapshot.SavedAt
	x.mu.Unlock()

	if x.vectorPath != "" {
		x.ensureVectors()
		if err := x.vectors.Save(x.vectorPath); err != nil {
			x.log.WithError(err).Warn("failed to save vector index")
		}
	}
	return nil
}

// ensureVectors rebuilds the vector graph if entries changed since the last
// build.
func (x *Index) ensureVectors() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.vectorsDirty {
		return
	}
	n := x.vectors.Build(x.entries, x.vectorMinQuality)
	x.vectorsDirty = false
	x.log.WithField("faces", n).Debug("vector index rebuilt")
}
