package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/faceindex"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// fakeIndex records calls and returns canned results
type fakeIndex struct {
	mu sync.Mutex

	status    faceindex.Status
	results   []facematch.MatchResult
	searchErr error
	batch     faceindex.BatchResult
	batchErr  error
	removed   int

	added      []facematch.Photo
	removedIDs []string
	lastRef    faceindex.Reference
	lastOpts   faceindex.SearchOptions

	// initialize, when set, replaces the default Initialize behaviour
	initialize func(ctx context.Context, photos []facematch.Photo, onProgress faceindex.ProgressFunc) (faceindex.BatchResult, error)
}

func (f *fakeIndex) Status() faceindex.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeIndex) Initialize(ctx context.Context, photos []facematch.Photo, onProgress faceindex.ProgressFunc) (faceindex.BatchResult, error) {
	if f.initialize != nil {
		return f.initialize(ctx, photos, onProgress)
	}
	for i := range photos {
		if onProgress != nil {
			onProgress(i+1, len(photos), photos[i].ID)
		}
	}
	return faceindex.BatchResult{Total: len(photos), Analyzed: len(photos)}, nil
}

func (f *fakeIndex) OnPhotosAdded(_ context.Context, photos []facematch.Photo) (faceindex.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, photos...)
	return f.batch, f.batchErr
}

func (f *fakeIndex) OnPhotosRemoved(_ context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removedIDs = append(f.removedIDs, ids...)
	return f.removed, f.batchErr
}

func (f *fakeIndex) Search(_ context.Context, ref faceindex.Reference, opts faceindex.SearchOptions) ([]facematch.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRef = ref
	f.lastOpts = opts
	return f.results, f.searchErr
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newTestRouter wires the handlers the way the server does
func newTestRouter(idx FaceIndex) (*chi.Mux, *JobManager) {
	v := validator.New()
	jm := NewJobManager()
	ih := NewIndexHandler(idx, jm, v, testLogger())
	sh := NewSearchHandler(idx, v, testLogger())

	r := chi.NewRouter()
	r.Get("/api/v1/index/status", ih.Status)
	r.Post("/api/v1/index/photos", ih.AddPhotos)
	r.Delete("/api/v1/index/photos", ih.RemovePhotos)
	r.Post("/api/v1/index/build", ih.StartBuild)
	r.Get("/api/v1/index/build/{jobId}", ih.BuildStatus)
	r.Get("/api/v1/index/build/{jobId}/events", ih.BuildEvents)
	r.Delete("/api/v1/index/build/{jobId}", ih.CancelBuild)
	r.Post("/api/v1/search", sh.Search)
	return r, jm
}

// multipartRequest builds a search upload with the given form fields
func multipartRequest(t *testing.T, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if file != nil {
		part, err := w.CreateFormFile("file", "ref.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(file)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
