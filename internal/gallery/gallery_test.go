package gallery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-search/internal/facematch"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"PHOTO.JPEG", true},
		{"scan.tiff", true},
		{"img.webp", true},
		{"notes.txt", false},
		{"noext", false},
		{"archive.jpg.zip", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsImage(tt.name); got != tt.want {
				t.Errorf("IsImage(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestScan_NaturalOrderAndIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "img10.jpg"))
	writeFile(t, filepath.Join(root, "img2.jpg"))
	writeFile(t, filepath.Join(root, "img1.png"))
	writeFile(t, filepath.Join(root, "trip", "a.jpg"))
	writeFile(t, filepath.Join(root, "readme.md"))
	writeFile(t, filepath.Join(root, ".thumbs", "hidden.jpg"))
	writeFile(t, filepath.Join(root, ".hidden.jpg"))

	photos, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []string{"img1.png", "img2.jpg", "img10.jpg", "trip/a.jpg"}
	if len(photos) != len(want) {
		t.Fatalf("got %d photos, want %d: %+v", len(photos), len(want), photos)
	}
	for i, id := range want {
		if photos[i].ID != id {
			t.Errorf("photos[%d].ID = %q, want %q", i, photos[i].ID, id)
		}
	}

	last := photos[3]
	if last.FileName != "a.jpg" {
		t.Errorf("FileName = %q, want a.jpg", last.FileName)
	}
	if last.Path != filepath.Join(root, "trip", "a.jpg") {
		t.Errorf("Path = %q", last.Path)
	}
	if last.LastModified.IsZero() {
		t.Error("LastModified not set")
	}
}

func TestScan_ModTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.jpg")
	writeFile(t, path)
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	photos, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(photos) != 1 || !photos[0].LastModified.Equal(mtime) {
		t.Errorf("got %+v, want LastModified %v", photos, mtime)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestMissing(t *testing.T) {
	indexed := []facematch.Photo{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	current := []facematch.Photo{{ID: "b"}, {ID: "d"}}

	got := Missing(indexed, current)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Missing = %v, want [a c]", got)
	}
	if got := Missing(nil, current); len(got) != 0 {
		t.Errorf("Missing(nil) = %v, want empty", got)
	}
}
