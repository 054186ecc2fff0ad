// Package apiv1 serves the dashboard's REST API under /api/v1.
package apiv1

import (
	"net/http"

	"workflow-dashboard/internal/infra/auth"
	"workflow-dashboard/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SessionVerifier resolves the session claims carried by a request.
type SessionVerifier interface {
	ParseFromRequest(r *http.Request) (*auth.SessionClaims, error)
}

type Server struct {
	jobs      usecase.JobUseCase
	workflows usecase.WorkflowUseCase
	files     usecase.WorkflowFileUseCase
	users     usecase.UserUseCase
	sessions  SessionVerifier
	validate  *validator.Validate
	log       *zerolog.Logger
}

func NewServer(
	jobs usecase.JobUseCase,
	workflows usecase.WorkflowUseCase,
	files usecase.WorkflowFileUseCase,
	users usecase.UserUseCase,
	sessions SessionVerifier,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "APIv1").Logger()
	return &Server{
		jobs:      jobs,
		workflows: workflows,
		files:     files,
		users:     users,
		sessions:  sessions,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       &l,
	}
}

// RegisterAPIV1 mounts every route on r using absolute paths.
func RegisterAPIV1(r chi.Router, srv *Server) {
	r.Get("/health", srv.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(srv.authenticate)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", srv.listJobs)
			r.Post("/", srv.createJob)
			r.Post("/download-urls", srv.downloadURLs)
			r.Get("/{id}", srv.getJob)
			r.Delete("/{id}", srv.deleteJob)
			r.Post("/{id}/process", srv.processJob)
		})

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", srv.listWorkflows)
			r.Post("/", srv.createWorkflow)
			r.Patch("/status", srv.updateWorkflowStatus)
			r.Get("/{workflowId}", srv.getWorkflow)

			r.Route("/{workflowId}/files", func(r chi.Router) {
				r.Get("/", srv.listWorkflowFiles)
				r.Put("/", srv.upsertWorkflowFile)
				r.Get("/{fileId}", srv.getWorkflowFile)
				r.Delete("/{fileId}", srv.deleteWorkflowFile)
			})
		})
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
