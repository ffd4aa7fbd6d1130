package database

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// VectorIndexMetadata is written next to a persisted vector index.
type VectorIndexMetadata struct {
	FaceCount int       `json:"face_count"`
	Dims      int       `json:"dims"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const vectorIndexVersion = 1

// Neighbor is one result of a nearest-descriptor lookup.
type Neighbor struct {
	PhotoID  string  `json:"photo_id"`
	FaceID   string  `json:"face_id"`
	Distance float64 `json:"distance"`
}

// VectorIndex is an HNSW graph over face descriptors keyed by
// "photoID/faceID", using Euclidean distance.
type VectorIndex struct {
	graph *hnsw.Graph[string]
	dims  int
	mu    sync.RWMutex
}

// NewVectorIndex creates an empty index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// FaceKey joins a photo and face ID into a graph key.
func FaceKey(photoID, faceID string) string {
	return photoID + "/" + faceID
}

// SplitFaceKey reverses FaceKey. Photo IDs may contain slashes; face IDs don't.
func SplitFaceKey(key string) (photoID, faceID string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	g.Rng = rand.New(rand.NewSource(1)) //nolint:gosec // level assignment only
	return g
}

// Build replaces the graph with every face whose overall quality is at
// least minQuality. Faces whose descriptor length differs from the first
// one added are skipped. Returns the number of faces indexed.
func (v *VectorIndex) Build(entries map[string]IndexEntry, minQuality float64) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := newGraph()
	dims := 0
	for _, photoID := range ids {
		for _, face := range entries[photoID].Faces {
			if !face.HasDescriptor() || face.Quality.OverallQuality < minQuality {
				continue
			}
			if dims == 0 {
				dims = len(face.Descriptor)
			}
			if len(face.Descriptor) != dims {
				continue
			}
			g.Add(hnsw.MakeNode(FaceKey(photoID, face.ID), face.Descriptor))
		}
	}

	v.graph = g
	v.dims = dims
	return g.Len()
}

// Add inserts one face. Descriptors of a different length are rejected.
func (v *VectorIndex) Add(photoID string, face facematch.Face) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !face.HasDescriptor() {
		return nil
	}
	if v.graph == nil {
		v.graph = newGraph()
	}
	if v.dims == 0 {
		v.dims = len(face.Descriptor)
	}
	if len(face.Descriptor) != v.dims {
		return fmt.Errorf("descriptor has %d dimensions, index has %d", len(face.Descriptor), v.dims)
	}
	v.graph.Add(hnsw.MakeNode(FaceKey(photoID, face.ID), face.Descriptor))
	return nil
}

// Nearest returns up to n faces closest to query, nearest first.
func (v *VectorIndex) Nearest(query []float32, n int) ([]Neighbor, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph == nil {
		return nil, errors.New("index not initialized")
	}
	if n <= 0 || v.graph.Len() == 0 {
		return []Neighbor{}, nil
	}
	if len(query) != v.dims {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(query), v.dims)
	}

	nodes := v.graph.Search(query, n)
	out := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		photoID, faceID := SplitFaceKey(node.Key)
		out = append(out, Neighbor{
			PhotoID:  photoID,
			FaceID:   faceID,
			Distance: facematch.EuclideanDistance(query, node.Value),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return FaceKey(out[i].PhotoID, out[i].FaceID) < FaceKey(out[j].PhotoID, out[j].FaceID)
	})
	return out, nil
}

// Len returns the number of indexed faces.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.graph == nil {
		return 0
	}
	return v.graph.Len()
}

// Save persists the graph to path and its metadata to path.meta.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph == nil || v.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create vector index file: %w", err)
	}
	if err := v.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export vector index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close vector index file: %w", err)
	}

	meta, err := json.Marshal(VectorIndexMetadata{
		FaceCount: v.graph.Len(),
		Dims:      v.dims,
		BuildTime: time.Now().UTC(),
		Version:   vectorIndexVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", meta, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load reads a graph saved with Save. A missing graph file is not an
// error; the index stays empty and callers rebuild it.
func (v *VectorIndex) Load(path string) (VectorIndexMetadata, error) {
	var meta VectorIndexMetadata

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return meta, nil
	}

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if meta.Version != vectorIndexVersion {
		return meta, fmt.Errorf("vector index version %d not supported", meta.Version)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return meta, fmt.Errorf("failed to load vector index: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph = saved.Graph
	v.dims = meta.Dims
	return meta, nil
}
