package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/legalai/legal-assistant/internal/identity"
	"github.com/legalai/legal-assistant/internal/middleware"
	"go.uber.org/zap"
)

// NewRouter assembles the middleware stack and all routes.
func NewRouter(h *Handler, health *HealthHandler, corsOrigins []string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.RequestLogger(&chiMiddleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(logger.Named("http")),
		NoColor: true,
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins))
	r.Use(identity.Middleware(h.cookies))

	health.RegisterHealth(r)
	h.RegisterRoutes(r)

	return r
}
