package database

import (
	"sort"
	"time"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// EntryMetadata is the file information an entry was analysed from.
type EntryMetadata struct {
	LastModified time.Time `json:"last_modified"`
	Path         string    `json:"path"`
	FileName     string    `json:"file_name,omitempty"`
}

// IndexEntry holds the faces extracted from one photo. An entry with no
// faces records that the photo was analysed and nothing usable was found.
type IndexEntry struct {
	Faces    []facematch.Face `json:"faces"`
	Metadata EntryMetadata    `json:"metadata"`
}

// EntryRecord pairs an entry with its photo ID for serialisation.
type EntryRecord struct {
	PhotoID string     `json:"photo_id"`
	Entry   IndexEntry `json:"entry"`
}

// Snapshot is the persisted form of the face index.
type Snapshot struct {
	Version int           `json:"version"`
	SavedAt time.Time     `json:"saved_at"`
	Entries []EntryRecord `json:"entries"`
}

// NewSnapshot builds a snapshot of the current version with entries ordered
// by photo ID.
func NewSnapshot(entries map[string]IndexEntry) *Snapshot {
	records := make([]EntryRecord, 0, len(entries))
	for id, entry := range entries {
		records = append(records, EntryRecord{PhotoID: id, Entry: entry})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].PhotoID < records[j].PhotoID
	})
	return &Snapshot{
		Version: CurrentSnapshotVersion,
		SavedAt: time.Now().UTC(),
		Entries: records,
	}
}

// EntryMap returns the entries keyed by photo ID. Later duplicates win.
func (s *Snapshot) EntryMap() map[string]IndexEntry {
	out := make(map[string]IndexEntry, len(s.Entries))
	for _, rec := range s.Entries {
		out[rec.PhotoID] = rec.Entry
	}
	return out
}

// FaceCount returns the number of faces across all entries.
func (s *Snapshot) FaceCount() int {
	n := 0
	for _, rec := range s.Entries {
		n += len(rec.Entry.Faces)
	}
	return n
}
