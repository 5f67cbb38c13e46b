package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"imagebatch/internal/http/handlers"
	"imagebatch/internal/infra"
	"imagebatch/internal/middleware"
)

// NewRouter builds the operator API router.
func NewRouter(app *handlers.App, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/healthz", app.Health)
	r.Get("/v1/status", app.Status)

	return r
}
