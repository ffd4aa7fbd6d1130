package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-search/internal/faceindex"
	"github.com/kozaktomas/face-search/internal/facematch"
)

// FaceIndex is the part of faceindex.Index the HTTP API uses.
type FaceIndex interface {
	Status() faceindex.Status
	Initialize(ctx context.Context, photos []facematch.Photo, onProgress faceindex.ProgressFunc) (faceindex.BatchResult, error)
	OnPhotosAdded(ctx context.Context, photos []facematch.Photo) (faceindex.BatchResult, error)
	OnPhotosRemoved(ctx context.Context, ids []string) (int, error)
	Search(ctx context.Context, ref faceindex.Reference, opts faceindex.SearchOptions) ([]facematch.MatchResult, error)
}

// IndexHandler handles index maintenance endpoints
type IndexHandler struct {
	index      FaceIndex
	jobManager *JobManager
	validate   *validator.Validate
	log        logrus.FieldLogger
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(index FaceIndex, jm *JobManager, v *validator.Validate, log logrus.FieldLogger) *IndexHandler {
	return &IndexHandler{
		index:      index,
		jobManager: jm,
		validate:   v,
		log:        log,
	}
}

// PhotoRequest describes one gallery photo
type PhotoRequest struct {
	ID           string    `json:"id" validate:"required"`
	Path         string    `json:"path" validate:"required"`
	FileName     string    `json:"fileName"`
	LastModified time.Time `json:"lastModified" validate:"required"`
}

// AddPhotosRequest represents an add photos request
type AddPhotosRequest struct {
	Photos []PhotoRequest `json:"photos" validate:"required,min=1,dive"`
}

// BuildRequest represents an index build request
type BuildRequest struct {
	Photos []PhotoRequest `json:"photos" validate:"dive"`
}

// RemovePhotosRequest represents a remove photos request
type RemovePhotosRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func toPhotos(reqs []PhotoRequest) []facematch.Photo {
	photos := make([]facematch.Photo, len(reqs))
	for i, p := range reqs {
		photos[i] = facematch.Photo{
			ID:           p.ID,
			Path:         p.Path,
			FileName:     p.FileName,
			LastModified: p.LastModified,
		}
	}
	return photos
}

// Status returns the index status
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.index.Status())
}

// AddPhotos indexes new or modified photos
func (h *IndexHandler) AddPhotos(w http.ResponseWriter, r *http.Request) {
	var req AddPhotosRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	res, err := h.index.OnPhotosAdded(r.Context(), toPhotos(req.Photos))
	if err != nil {
		h.log.WithError(err).Error("failed to add photos")
		respondError(w, http.StatusInternalServerError, "failed to update index")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RemovePhotos drops photos from the index
func (h *IndexHandler) RemovePhotos(w http.ResponseWriter, r *http.Request) {
	var req RemovePhotosRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	removed, err := h.index.OnPhotosRemoved(r.Context(), req.IDs)
	if err != nil {
		h.log.WithError(err).Error("failed to remove photos")
		respondError(w, http.StatusInternalServerError, "failed to update index")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// StartBuild starts an async index initialization
func (h *IndexHandler) StartBuild(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if running := h.jobManager.Running(); running != nil {
		respondErrorCode(w, http.StatusConflict, codeBuildRunning,
			fmt.Sprintf("index build %s is already running", running.ID))
		return
	}

	job, ctx := h.jobManager.CreateJob()
	go h.runBuildJob(ctx, job, toPhotos(req.Photos))

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusPending),
	})
}

// BuildStatus returns the status of a build job
func (h *IndexHandler) BuildStatus(w http.ResponseWriter, r *http.Request) {
	job := h.lookupJob(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// BuildEvents streams build job events via SSE
func (h *IndexHandler) BuildEvents(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*BuildJob).View()
		},
	)
}

// CancelBuild cancels a build job between photos
func (h *IndexHandler) CancelBuild(w http.ResponseWriter, r *http.Request) {
	job := h.lookupJob(w, r)
	if job == nil {
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *IndexHandler) lookupJob(w http.ResponseWriter, r *http.Request) *BuildJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// runBuildJob runs the build job in the background
func (h *IndexHandler) runBuildJob(ctx context.Context, job *BuildJob, photos []facematch.Photo) {
	log := h.log.WithField("job_id", job.ID)

	job.setRunning(len(photos))
	job.SendEvent(JobEvent{Type: "started", Message: "Index build started"})

	res, err := h.index.Initialize(ctx, photos, func(current, total int, message string) {
		job.setProgress(current)
		job.SendEvent(JobEvent{
			Type:    "progress",
			Message: sanitizeForLog(message),
			Data:    map[string]int{"current": current, "total": total},
		})
	})

	switch {
	case errors.Is(err, context.Canceled):
		log.Info("index build cancelled")
		job.finish(JobStatusCancelled, &res, "")
	case err != nil:
		log.WithError(err).Error("index build failed")
		if job.finish(JobStatusFailed, &res, err.Error()) {
			job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
		}
	default:
		log.WithField("analyzed", res.Analyzed).Info("index build completed")
		if job.finish(JobStatusCompleted, &res, "") {
			job.SendEvent(JobEvent{Type: "completed", Data: res})
		}
	}
}
