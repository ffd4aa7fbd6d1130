//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/face-search/internal/config"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facematch"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Open(ctx, cfg, nil)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testFace(id string, descriptor ...float32) facematch.Face {
	return facematch.Face{
		ID:             id,
		Descriptor:     descriptor,
		Box:            facematch.Box{X: 10, Y: 20, Width: 64, Height: 80},
		Landmarks:      []facematch.Point{{X: 12, Y: 30}, {X: 40, Y: 31}},
		DetectionScore: 0.91,
		Scale:          1,
		Quality:        facematch.QualityReport{OverallQuality: 0.72, LandmarkQuality: 1},
	}
}

func TestRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewRepository(pool)
	modified := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("EmptyStore", func(t *testing.T) {
		if _, err := repo.Load(ctx); !errors.Is(err, database.ErrSnapshotNotFound) {
			t.Errorf("Expected ErrSnapshotNotFound, got %v", err)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		entries := map[string]database.IndexEntry{
			"a.jpg": {
				Faces:    []facematch.Face{testFace("f1", 1, 0, 0), testFace("f2", 0, 1, 0)},
				Metadata: database.EntryMetadata{LastModified: modified, Path: "/p/a.jpg", FileName: "a.jpg"},
			},
			"b.jpg": {
				Metadata: database.EntryMetadata{LastModified: modified, Path: "/p/b.jpg", FileName: "b.jpg"},
			},
		}
		if err := repo.Save(ctx, database.NewSnapshot(entries)); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}
		m := got.EntryMap()
		if len(m) != 2 {
			t.Fatalf("Expected 2 entries, got %d", len(m))
		}
		a := m["a.jpg"]
		if len(a.Faces) != 2 || a.Faces[0].ID != "f1" || a.Faces[1].ID != "f2" {
			t.Errorf("Unexpected faces for a.jpg: %+v", a.Faces)
		}
		if a.Faces[0].Box.Width != 64 || len(a.Faces[0].Landmarks) != 2 {
			t.Errorf("Face geometry not preserved: %+v", a.Faces[0])
		}
		if a.Faces[0].Quality.OverallQuality != 0.72 {
			t.Errorf("Quality not preserved: %+v", a.Faces[0].Quality)
		}
		if !a.Metadata.LastModified.Equal(modified) {
			t.Errorf("Expected last modified %v, got %v", modified, a.Metadata.LastModified)
		}
	})

	t.Run("Nearest", func(t *testing.T) {
		got, err := repo.Nearest(ctx, []float32{0.9, 0.1, 0}, 1, 0.5)
		if err != nil {
			t.Fatalf("Failed to query nearest: %v", err)
		}
		if len(got) != 1 || got[0].FaceID != "f1" {
			t.Errorf("Expected f1 nearest, got %+v", got)
		}

		got, err = repo.Nearest(ctx, []float32{0.9, 0.1, 0}, 1, 0.8)
		if err != nil {
			t.Fatalf("Failed to query nearest: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected low-quality faces to be skipped, got %+v", got)
		}
	})

	t.Run("ModTimeKeepsMicroseconds", func(t *testing.T) {
		precise := modified.Add(123456789 * time.Nanosecond)
		entries := map[string]database.IndexEntry{
			"d.jpg": {Metadata: database.EntryMetadata{LastModified: precise, Path: "/p/d.jpg"}},
		}
		if err := repo.Save(ctx, database.NewSnapshot(entries)); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}
		want := precise.Truncate(time.Microsecond)
		if lm := got.EntryMap()["d.jpg"].Metadata.LastModified; !lm.Equal(want) {
			t.Errorf("Expected last modified %v, got %v", want, lm)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		entries := map[string]database.IndexEntry{
			"c.jpg": {Metadata: database.EntryMetadata{LastModified: modified, Path: "/p/c.jpg"}},
		}
		if err := repo.Save(ctx, database.NewSnapshot(entries)); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		got, err := repo.Load(ctx)
		if err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}
		if len(got.Entries) != 1 || got.Entries[0].PhotoID != "c.jpg" {
			t.Errorf("Expected only c.jpg, got %+v", got.Entries)
		}
	})

	t.Run("VersionMismatch", func(t *testing.T) {
		if _, err := pool.DB().ExecContext(ctx, "UPDATE face_index_meta SET version = version + 1"); err != nil {
			t.Fatalf("Failed to bump version: %v", err)
		}
		if _, err := repo.Load(ctx); !errors.Is(err, database.ErrSnapshotVersion) {
			t.Errorf("Expected ErrSnapshotVersion, got %v", err)
		}
	})
}

func TestMigrationsApplied(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	versions, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != "001_face_index.sql" {
		t.Errorf("Expected 001_face_index.sql applied, got %v", versions)
	}

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}
	again, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("Failed to list migrations: %v", err)
	}
	if len(again) != len(versions) {
		t.Errorf("Expected migrations to apply once, got %v", again)
	}
}
