// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-search/internal/database"
)

// MockRepository is an in-memory implementation of database.Repository
type MockRepository struct {
	mu       sync.Mutex
	snapshot *database.Snapshot

	// Error injection
	LoadError error
	SaveError error

	// Call counters
	LoadCalls int
	SaveCalls int
}

// NewMockRepository creates an empty mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

// SetSnapshot stores a snapshot as if it had been saved earlier
func (m *MockRepository) SetSnapshot(s *database.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
}

// Snapshot returns the last saved snapshot, or nil
func (m *MockRepository) Snapshot() *database.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Load returns the stored snapshot
func (m *MockRepository) Load(ctx context.Context) (*database.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls++
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	if m.snapshot == nil {
		return nil, database.ErrSnapshotNotFound
	}
	if m.snapshot.Version != database.CurrentSnapshotVersion {
		return nil, database.ErrSnapshotVersion
	}
	return m.snapshot, nil
}

// Save stores the snapshot
func (m *MockRepository) Save(ctx context.Context, s *database.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.snapshot = s
	return nil
}
