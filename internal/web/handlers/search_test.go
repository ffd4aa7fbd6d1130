package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-search/internal/faceindex"
	"github.com/kozaktomas/face-search/internal/facematch"
)

func TestSearchHandler_Upload(t *testing.T) {
	idx := &fakeIndex{results: []facematch.MatchResult{
		{PhotoID: "a.jpg", FaceID: "f1", Similarity: 0.92, Confidence: 0.88},
		{PhotoID: "b.jpg", FaceID: "f7", Similarity: 0.61, Confidence: 0.55},
	}}
	router, _ := newTestRouter(idx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, []byte("jpeg-bytes"), map[string]string{
		"similarity_threshold": "0.55",
		"confidence_threshold": "0.45",
		"quality_threshold":    "0.25",
		"max_results":          "10",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Count != 2 || len(resp.Results) != 2 || resp.Results[0].PhotoID != "a.jpg" {
		t.Errorf("unexpected response: %+v", resp)
	}

	if string(idx.lastRef.Data) != "jpeg-bytes" || idx.lastRef.Descriptor != nil {
		t.Errorf("expected uploaded bytes as reference, got %+v", idx.lastRef)
	}
	want := facematch.MatchConfig{
		SimilarityThreshold: 0.55,
		ConfidenceThreshold: 0.45,
		QualityThreshold:    0.25,
		MaxResults:          10,
	}
	if idx.lastOpts.Match != want {
		t.Errorf("expected match config %+v, got %+v", want, idx.lastOpts.Match)
	}
}

func TestSearchHandler_NoMatchesIsEmptyList(t *testing.T) {
	idx := &fakeIndex{results: []facematch.MatchResult{}}
	router, _ := newTestRouter(idx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, []byte("jpeg-bytes"), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("expected empty result list, got %s", rec.Body.String())
	}
}

func TestSearchHandler_OutOfRangeThresholdsAreClamped(t *testing.T) {
	idx := &fakeIndex{results: []facematch.MatchResult{}}
	router, _ := newTestRouter(idx)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, []byte("jpeg-bytes"), map[string]string{
		"similarity_threshold": "1.5",
		"confidence_threshold": "-0.3",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected out-of-range thresholds to be accepted, got %d: %s", rec.Code, rec.Body.String())
	}
	got := idx.lastOpts.Match.Normalize()
	if got.SimilarityThreshold != 1 {
		t.Errorf("expected similarity threshold clamped to 1, got %v", got.SimilarityThreshold)
	}
	if got.ConfidenceThreshold != 0 {
		t.Errorf("expected confidence threshold clamped to 0, got %v", got.ConfidenceThreshold)
	}
}

func TestSearchHandler_Descriptor(t *testing.T) {
	idx := &fakeIndex{results: []facematch.MatchResult{{PhotoID: "a.jpg", Similarity: 0.9}}}
	router, _ := newTestRouter(idx)

	body := `{"descriptor":[0.1,0.2,0.3],"similarity_threshold":0.6,"max_results":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(idx.lastRef.Descriptor) != 3 || idx.lastRef.Descriptor[2] != 0.3 || idx.lastRef.Data != nil {
		t.Errorf("expected descriptor reference, got %+v", idx.lastRef)
	}
	if idx.lastOpts.Match.SimilarityThreshold != 0.6 || idx.lastOpts.Match.MaxResults != 5 {
		t.Errorf("unexpected match config: %+v", idx.lastOpts.Match)
	}
}

func TestSearchHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		reason string
	}{
		{
			name:   "missing file",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, nil, map[string]string{"max_results": "5"}) },
			reason: "missing file",
		},
		{
			name: "invalid threshold",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, []byte("x"), map[string]string{"similarity_threshold": "high"})
			},
			reason: "invalid similarity_threshold",
		},
		{
			name: "invalid max results",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, []byte("x"), map[string]string{"max_results": "ten"})
			},
			reason: "invalid max_results",
		},
		{
			name: "max results out of range",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, []byte("x"), map[string]string{"max_results": "5000"})
			},
		},
		{
			name: "empty descriptor",
			req: func(t *testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"descriptor":[]}`))
				r.Header.Set("Content-Type", "application/json")
				return r
			},
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("plain"))
				r.Header.Set("Content-Type", "text/plain")
				return r
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx := &fakeIndex{}
			router, _ := newTestRouter(idx)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tc.req(t))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Code != codeInvalidRequest {
				t.Errorf("expected code %q, got %q", codeInvalidRequest, resp.Code)
			}
			if tc.reason != "" && resp.Error != tc.reason {
				t.Errorf("expected error %q, got %q", tc.reason, resp.Error)
			}
			if idx.lastRef.Data != nil || idx.lastRef.Descriptor != nil {
				t.Error("expected search not to be called")
			}
		})
	}
}

func TestSearchHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no reference face", faceindex.ErrNoReferenceFace, http.StatusUnprocessableEntity, codeNoReferenceFace},
		{"unreadable reference", fmt.Errorf("%w: bad jpeg", faceindex.ErrReferenceUnreadable), http.StatusBadRequest, codeReferenceUnreadable},
		{"index not built", faceindex.ErrIndexNotInitialized, http.StatusConflict, codeIndexNotInitialized},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx := &fakeIndex{searchErr: tc.err}
			router, _ := newTestRouter(idx)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, []byte("jpeg-bytes"), nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Errorf("expected code %q, got %q", tc.wantCode, resp.Code)
			}
			if strings.Contains(resp.Error, "disk on fire") {
				t.Error("internal error details leaked to client")
			}
		})
	}
}
