package httpapi

import (
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/service/enhancement"
	searchsvc "github.com/destiny-evidence/reference-repository/pkg/service/search"
)

// Dependencies are every capability and service the HTTP surface needs.
type Dependencies struct {
	Store       capability.ReferenceStore
	UnitOfWork  capability.UnitOfWork
	Queue       capability.TaskQueue
	Enhancement *enhancement.Service
	Search      *searchsvc.Service
}

// NewRouter builds the full §6 HTTP surface: imports, enhancement
// requests/batches, search/lookup, and robot/automation admin, each
// mounted behind request logging, panic recovery, and CORS (configured via
// CORS_ALLOWED_ORIGINS, comma-separated, default "*").
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions()))
	if deps.UnitOfWork != nil {
		r.Use(WithTransaction(deps.UnitOfWork))
	}

	imports := NewImportsRouter(deps.Store, deps.Queue)
	enhancements := NewEnhancementsRouter(deps.Enhancement)
	references := NewReferencesRouter(deps.Search, deps.Store)
	admin := NewAdminRouter(deps.Store)

	r.Mount("/imports", imports.Routes())
	r.Mount("/enhancement-requests", enhancements.RequestRoutes())
	r.Mount("/robot-enhancement-batches", enhancements.BatchRoutes())
	r.Mount("/references", references.Routes())
	r.Mount("/robots", admin.RobotRoutes())
	r.Mount("/robot-automations", admin.AutomationRoutes())
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func corsOptions() cors.Options {
	origins := []string{"*"}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
