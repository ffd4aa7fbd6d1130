package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/constants"
	"github.com/kozaktomas/face-search/internal/faceindex"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// SearchHandler handles reference face searches
type SearchHandler struct {
	index    FaceIndex
	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(index FaceIndex, v *validator.Validate, log logrus.FieldLogger) *SearchHandler {
	return &SearchHandler{index: index, validate: v, log: log}
}

// SearchOptions are the thresholds a client may override. Thresholds
// outside [0,1] are clamped rather than rejected.
type SearchOptions struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	QualityThreshold    float64 `json:"quality_threshold"`
	MaxResults          int     `json:"max_results" validate:"gte=0,lte=1000"`
}

func (o SearchOptions) matchConfig() facematch.MatchConfig {
	return facematch.MatchConfig{
		SimilarityThreshold: o.SimilarityThreshold,
		ConfidenceThreshold: o.ConfidenceThreshold,
		QualityThreshold:    o.QualityThreshold,
		MaxResults:          o.MaxResults,
	}
}

// DescriptorSearchRequest searches with a precomputed descriptor
type DescriptorSearchRequest struct {
	SearchOptions
	Descriptor []float32 `json:"descriptor" validate:"required,min=1"`
}

// SearchResponse represents a search response
type SearchResponse struct {
	Results []facematch.MatchResult `json:"results"`
	Count   int                     `json:"count"`
}

// Search accepts either a multipart reference image in the "file" field with
// optional threshold form fields, or a JSON descriptor request.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var ref faceindex.Reference
	var opts SearchOptions

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req DescriptorSearchRequest
		if !decodeAndValidate(w, r, h.validate, &req) {
			return
		}
		ref.Descriptor = req.Descriptor
		opts = req.SearchOptions
	} else {
		data, form, ok := h.parseUpload(w, r)
		if !ok {
			return
		}
		ref.Data = data
		opts = form
	}

	results, err := h.index.Search(r.Context(), ref, faceindex.SearchOptions{Match: opts.matchConfig()})
	if err != nil {
		h.respondSearchError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}

// parseUpload reads the reference image and form options. On failure it
// writes the response and returns false.
func (h *SearchHandler) parseUpload(w http.ResponseWriter, r *http.Request) ([]byte, SearchOptions, bool) {
	var opts SearchOptions

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "failed to parse form")
		return nil, opts, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "missing file")
		return nil, opts, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "failed to read file")
		return nil, opts, false
	}

	floats := []struct {
		field string
		dst   *float64
	}{
		{"similarity_threshold", &opts.SimilarityThreshold},
		{"confidence_threshold", &opts.ConfidenceThreshold},
		{"quality_threshold", &opts.QualityThreshold},
	}
	for _, f := range floats {
		v := r.FormValue(f.field)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid "+f.field)
			return nil, opts, false
		}
		*f.dst = parsed
	}
	if v := r.FormValue("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondErrorCode(w, http.StatusBadRequest, codeInvalidRequest, "invalid max_results")
			return nil, opts, false
		}
		opts.MaxResults = n
	}

	if err := h.validate.Struct(opts); err != nil {
		respondErrorCode(w, http.StatusBadRequest, codeInvalidRequest, validationMessage(err))
		return nil, opts, false
	}
	return data, opts, true
}

func (h *SearchHandler) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, faceindex.ErrNoReferenceFace):
		respondErrorCode(w, http.StatusUnprocessableEntity, codeNoReferenceFace, "no face detected in reference image")
	case errors.Is(err, faceindex.ErrReferenceUnreadable):
		respondErrorCode(w, http.StatusBadRequest, codeReferenceUnreadable, "reference image could not be read")
	case errors.Is(err, faceindex.ErrIndexNotInitialized):
		respondErrorCode(w, http.StatusConflict, codeIndexNotInitialized, "face index is not built yet")
	default:
		h.log.WithError(err).Error("face search failed")
		respondError(w, http.StatusInternalServerError, "search failed")
	}
}
