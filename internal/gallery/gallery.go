// Package gallery lists the photos of a directory tree in the form the face
// index expects.
package gallery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"

	"github.com/kozaktomas/face-search/internal/facematch"
)

// imageExtensions are the file types the detector pipeline can decode.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Scan walks root and returns one photo per image file in natural order of
// their paths. A photo's ID is its slash-separated path relative to root, so
// it stays stable when the gallery is moved. Hidden files and directories
// are skipped.
func Scan(root string) ([]facematch.Photo, error) {
	root = filepath.Clean(root)
	byID := make(map[string]facematch.Photo)
	var ids []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsImage(name) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		byID[id] = facematch.Photo{
			ID:           id,
			Path:         path,
			FileName:     name,
			LastModified: info.ModTime().UTC(),
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	natsort.Sort(ids)
	photos := make([]facematch.Photo, 0, len(ids))
	for _, id := range ids {
		photos = append(photos, byID[id])
	}
	return photos, nil
}

// Missing returns the IDs of indexed photos that are not in current, in the
// order they appear in indexed.
func Missing(indexed, current []facematch.Photo) []string {
	present := make(map[string]struct{}, len(current))
	for _, p := range current {
		present[p.ID] = struct{}{}
	}
	var out []string
	for _, p := range indexed {
		if _, ok := present[p.ID]; !ok {
			out = append(out, p.ID)
		}
	}
	return out
}
