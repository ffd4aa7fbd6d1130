package database

import (
	"context"
	"errors"
)

var (
	// ErrSnapshotNotFound is returned when the store holds no snapshot yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotVersion is returned when a snapshot was written with another schema version.
	ErrSnapshotVersion = errors.New("snapshot version mismatch")
	// ErrSnapshotCorrupt is returned when a stored snapshot cannot be parsed.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
)

// SnapshotReader provides read access to the persisted face index
type SnapshotReader interface {
	// Load returns the stored snapshot, or ErrSnapshotNotFound,
	// ErrSnapshotVersion or ErrSnapshotCorrupt (possibly wrapped)
	Load(ctx context.Context) (*Snapshot, error)
}

// SnapshotWriter provides write access to the persisted face index
type SnapshotWriter interface {
	// Save replaces the stored snapshot
	Save(ctx context.Context, snapshot *Snapshot) error
}

// Repository is a complete face index store.
type Repository interface {
	SnapshotReader
	SnapshotWriter
}

// NeighborFinder is implemented by stores that can run the nearest-face
// lookup themselves.
type NeighborFinder interface {
	// Nearest returns up to n stored faces of at least minQuality, closest
	// to descriptor first
	Nearest(ctx context.Context, descriptor []float32, n int, minQuality float64) ([]Neighbor, error)
}

// IsRecoverable reports whether a load error means the index should simply
// start empty and be rebuilt.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrSnapshotVersion) ||
		errors.Is(err, ErrSnapshotCorrupt)
}
