package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-search/internal/web/handlers"
)

// searchTimeout bounds a single search request.
const searchTimeout = 5 * time.Minute

func (s *Server) setupRoutes() {
	indexHandler := handlers.NewIndexHandler(s.index, s.jobManager, s.validate, s.log)
	searchHandler := handlers.NewSearchHandler(s.index, s.validate, s.log)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Index maintenance
		r.Get("/index/status", indexHandler.Status)
		r.Post("/index/photos", indexHandler.AddPhotos)
		r.Delete("/index/photos", indexHandler.RemovePhotos)

		// Index build (long-running)
		r.Post("/index/build", indexHandler.StartBuild)
		r.Get("/index/build/{jobId}", indexHandler.BuildStatus)
		r.Get("/index/build/{jobId}/events", indexHandler.BuildEvents)
		r.Delete("/index/build/{jobId}", indexHandler.CancelBuild)

		// Search can take a while on large galleries
		r.With(chiMiddleware.Timeout(searchTimeout)).Post("/search", searchHandler.Search)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
}
