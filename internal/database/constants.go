package database

// HNSW parameters for the face descriptor graph
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100
)

// CurrentSnapshotVersion is the schema version written with every snapshot.
// Snapshots with any other version are discarded and the index is rebuilt.
const CurrentSnapshotVersion = 1
