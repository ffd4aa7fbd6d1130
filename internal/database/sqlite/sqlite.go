// Package sqlite stores the face index in a SQLite database through GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facematch"
)

const metaRowID = 1

type indexMeta struct {
	ID      uint `gorm:"primaryKey"`
	Version int
	SavedAt time.Time
}

func (indexMeta) TableName() string { return "face_index_meta" }

type entryRow struct {
	PhotoID      string `gorm:"primaryKey"`
	Path         string
	FileName     string
	LastModified time.Time
	FaceCount    int
	Faces        []byte // JSON-encoded []facematch.Face
}

func (entryRow) TableName() string { return "face_index_entries" }

// Repository implements database.Repository on SQLite.
type Repository struct {
	db *gorm.DB
}

// Open opens (or creates) the database file and migrates the schema.
func Open(path string, log logrus.FieldLogger) (*Repository, error) {
	if log == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		log = discard
	}
	gormLogger := logger.New(log, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(gormsqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&indexMeta{}, &entryRow{}); err != nil {
		return nil, fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close closes the underlying connection.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("closing sqlite database: %w", err)
	}
	return nil
}

// Load reads the snapshot.
func (r *Repository) Load(ctx context.Context) (*database.Snapshot, error) {
	db := r.db.WithContext(ctx)

	var meta indexMeta
	if err := db.First(&meta, metaRowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if meta.Version != database.CurrentSnapshotVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", database.ErrSnapshotVersion, meta.Version, database.CurrentSnapshotVersion)
	}

	var rows []entryRow
	if err := db.Order("photo_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read index entries: %w", err)
	}

	snapshot := &database.Snapshot{
		Version: meta.Version,
		SavedAt: meta.SavedAt,
		Entries: make([]database.EntryRecord, 0, len(rows)),
	}
	for _, row := range rows {
		var faces []facematch.Face
		if len(row.Faces) > 0 {
			if err := jsoniter.Unmarshal(row.Faces, &faces); err != nil {
				return nil, fmt.Errorf("%w: faces of %s: %v", database.ErrSnapshotCorrupt, row.PhotoID, err)
			}
		}
		snapshot.Entries = append(snapshot.Entries, database.EntryRecord{
			PhotoID: row.PhotoID,
			Entry: database.IndexEntry{
				Faces: faces,
				Metadata: database.EntryMetadata{
					LastModified: row.LastModified,
					Path:         row.Path,
					FileName:     row.FileName,
				},
			},
		})
	}
	return snapshot, nil
}

// Save replaces all stored entries in a single transaction.
func (r *Repository) Save(ctx context.Context, s *database.Snapshot) error {
	rows := make([]entryRow, 0, len(s.Entries))
	for _, rec := range s.Entries {
		faces, err := jsoniter.Marshal(rec.Entry.Faces)
		if err != nil {
			return fmt.Errorf("encoding faces of %s: %w", rec.PhotoID, err)
		}
		rows = append(rows, entryRow{
			PhotoID:      rec.PhotoID,
			Path:         rec.Entry.Metadata.Path,
			FileName:     rec.Entry.Metadata.FileName,
			LastModified: rec.Entry.Metadata.LastModified,
			FaceCount:    len(rec.Entry.Faces),
			Faces:        faces,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&entryRow{}).Error; err != nil {
			return fmt.Errorf("delete existing entries: %w", err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("insert entries: %w", err)
			}
		}
		meta := indexMeta{ID: metaRowID, Version: s.Version, SavedAt: s.SavedAt}
		if err := tx.Save(&meta).Error; err != nil {
			return fmt.Errorf("save metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
