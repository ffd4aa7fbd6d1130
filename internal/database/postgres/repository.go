package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/facematch"
)

const metaRowID = 1

var (
	_ database.Repository     = (*Repository)(nil)
	_ database.NeighborFinder = (*Repository)(nil)
)

// Repository implements database.Repository on PostgreSQL.
type Repository struct {
	pool *Pool
}

// NewRepository creates a new PostgreSQL face index repository.
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads the snapshot in one read-only transaction: metadata, entry
// rows, then their faces in order.
func (r *Repository) Load(ctx context.Context) (*database.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	snapshot := &database.Snapshot{}
	err = tx.QueryRowContext(ctx, "SELECT version, saved_at FROM face_index_meta WHERE id = $1", metaRowID).
		Scan(&snapshot.Version, &snapshot.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query index metadata: %w", err)
	}
	if snapshot.Version != database.CurrentSnapshotVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", database.ErrSnapshotVersion, snapshot.Version, database.CurrentSnapshotVersion)
	}

	positions, err := loadEntries(ctx, tx, snapshot)
	if err != nil {
		return nil, err
	}
	if err := loadFaces(ctx, tx, snapshot, positions); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func loadEntries(ctx context.Context, tx *sql.Tx, snapshot *database.Snapshot) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT photo_id, path, file_name, last_modified
		FROM face_index_entries
		ORDER BY photo_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]int)
	for rows.Next() {
		var rec database.EntryRecord
		md := &rec.Entry.Metadata
		if err := rows.Scan(&rec.PhotoID, &md.Path, &md.FileName, &md.LastModified); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		md.LastModified = md.LastModified.UTC()
		positions[rec.PhotoID] = len(snapshot.Entries)
		snapshot.Entries = append(snapshot.Entries, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return positions, nil
}

func loadFaces(ctx context.Context, tx *sql.Tx, snapshot *database.Snapshot, positions map[string]int) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT photo_id, face_id, descriptor, box, landmarks, detection_score, scale, quality
		FROM face_index_faces
		ORDER BY photo_id, face_index
	`)
	if err != nil {
		return fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		photoID, face, err := scanFaceRow(rows)
		if err != nil {
			return err
		}
		pos, ok := positions[photoID]
		if !ok {
			continue
		}
		entry := &snapshot.Entries[pos].Entry
		entry.Faces = append(entry.Faces, face)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate faces: %w", err)
	}
	return nil
}

// scanFaceRow scans one face_index_faces row.
func scanFaceRow(scanner interface{ Scan(...any) error }) (string, facematch.Face, error) {
	var photoID string
	var face facematch.Face
	var vec pgvector.Vector
	var box pq.Float64Array
	var landmarks, quality []byte

	if err := scanner.Scan(&photoID, &face.ID, &vec, &box, &landmarks, &face.DetectionScore, &face.Scale, &quality); err != nil {
		return "", face, fmt.Errorf("scan face: %w", err)
	}

	face.Descriptor = vec.Slice()
	if len(box) == 4 {
		face.Box = facematch.Box{X: box[0], Y: box[1], Width: box[2], Height: box[3]}
	}
	if len(landmarks) > 0 {
		if err := jsoniter.Unmarshal(landmarks, &face.Landmarks); err != nil {
			return "", face, fmt.Errorf("%w: landmarks of %s/%s: %v", database.ErrSnapshotCorrupt, photoID, face.ID, err)
		}
	}
	if err := jsoniter.Unmarshal(quality, &face.Quality); err != nil {
		return "", face, fmt.Errorf("%w: quality of %s/%s: %v", database.ErrSnapshotCorrupt, photoID, face.ID, err)
	}
	return photoID, face, nil
}

// Save replaces the stored snapshot in a single transaction. Faces without
// a descriptor cannot be ranked and are not stored.
//
//nolint:funlen // Batch operation with transaction management.
func (r *Repository) Save(ctx context.Context, s *database.Snapshot) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Faces go with their entries through ON DELETE CASCADE.
	if _, err := tx.ExecContext(ctx, "DELETE FROM face_index_entries"); err != nil {
		return fmt.Errorf("delete existing entries: %w", err)
	}

	entryStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_index_entries (photo_id, path, file_name, last_modified)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare entry statement: %w", err)
	}
	defer entryStmt.Close()

	faceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO face_index_faces (photo_id, face_index, face_id, descriptor, box, landmarks,
		                              detection_score, scale, quality)
		VALUES ($1, $2, $3, $4::vector, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("prepare face statement: %w", err)
	}
	defer faceStmt.Close()

	for _, rec := range s.Entries {
		md := rec.Entry.Metadata
		if _, err := entryStmt.ExecContext(ctx, rec.PhotoID, md.Path, md.FileName, md.LastModified); err != nil {
			return fmt.Errorf("insert entry %s: %w", rec.PhotoID, err)
		}

		for i, face := range rec.Entry.Faces {
			if !face.HasDescriptor() {
				continue
			}
			var landmarks sql.NullString
			if face.HasLandmarks() {
				if landmarks.String, err = jsoniter.MarshalToString(face.Landmarks); err != nil {
					return fmt.Errorf("encode landmarks %s/%s: %w", rec.PhotoID, face.ID, err)
				}
				landmarks.Valid = true
			}
			quality, err := jsoniter.MarshalToString(face.Quality)
			if err != nil {
				return fmt.Errorf("encode quality %s/%s: %w", rec.PhotoID, face.ID, err)
			}
			box := pq.Array([]float64{face.Box.X, face.Box.Y, face.Box.Width, face.Box.Height})

			if _, err := faceStmt.ExecContext(ctx,
				rec.PhotoID,
				i,
				face.ID,
				pgvector.NewVector(face.Descriptor),
				box,
				landmarks,
				face.DetectionScore,
				face.Scale,
				quality,
			); err != nil {
				return fmt.Errorf("insert face %s/%s: %w", rec.PhotoID, face.ID, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO face_index_meta (id, version, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, saved_at = EXCLUDED.saved_at
	`, metaRowID, s.Version, s.SavedAt); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Nearest returns the n stored faces closest to descriptor by Euclidean
// distance. Only faces with the same descriptor length and an overall
// quality of at least minQuality are considered.
func (r *Repository) Nearest(ctx context.Context, descriptor []float32, n int, minQuality float64) ([]database.Neighbor, error) {
	if len(descriptor) == 0 || n <= 0 {
		return []database.Neighbor{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT photo_id, face_id, descriptor <-> $1::vector AS distance
		FROM face_index_faces
		WHERE vector_dims(descriptor) = $2
		  AND COALESCE((quality->>'overall_quality')::double precision, 0) >= $4
		ORDER BY distance, photo_id, face_id
		LIMIT $3
	`, pgvector.NewVector(descriptor), len(descriptor), n, minQuality)
	if err != nil {
		return nil, fmt.Errorf("query nearest faces: %w", err)
	}
	defer rows.Close()

	out := make([]database.Neighbor, 0, n)
	for rows.Next() {
		var nb database.Neighbor
		if err := rows.Scan(&nb.PhotoID, &nb.FaceID, &nb.Distance); err != nil {
			return nil, fmt.Errorf("scan neighbour: %w", err)
		}
		out = append(out, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbours: %w", err)
	}
	return out, nil
}
