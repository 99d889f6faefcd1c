package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sydlexius/releasewire/internal/api/middleware"
	"github.com/sydlexius/releasewire/internal/importer"
	"github.com/sydlexius/releasewire/internal/release"
)

// ImportRunner starts background imports and reports their progress.
type ImportRunner interface {
	Start(ctx context.Context, principalID, rawLink string) (string, error)
	Status() importer.Status
}

// ReleaseReader is the read side of the catalog.
type ReleaseReader interface {
	GetByID(ctx context.Context, id string) (*release.Release, error)
	Count(ctx context.Context) (int, error)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Runner   ImportRunner
	Releases ReleaseReader
	Logger   *slog.Logger
	BasePath string
	APIToken string
	// Trigger limits POST /imports per client. Nil disables it.
	Trigger *middleware.TriggerRateLimiter
	// RunContext bounds background imports. It outlives individual requests.
	RunContext context.Context
}

// Router sets up all HTTP routes for the application.
type Router struct {
	runner   ImportRunner
	releases ReleaseReader
	logger   *slog.Logger
	basePath string
	apiToken string
	trigger  *middleware.TriggerRateLimiter
	runCtx   context.Context
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	runCtx := deps.RunContext
	if runCtx == nil {
		runCtx = context.Background()
	}
	return &Router{
		runner:   deps.Runner,
		releases: deps.Releases,
		logger:   deps.Logger.With(slog.String("component", "api")),
		basePath: deps.BasePath,
		apiToken: deps.APIToken,
		trigger:  deps.Trigger,
		runCtx:   runCtx,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	authMw := middleware.BearerToken(r.apiToken)
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)

	// Protected routes
	startImport := http.Handler(http.HandlerFunc(r.handleStartImport))
	if r.trigger != nil {
		startImport = r.trigger.Middleware(startImport)
	}
	mux.Handle("POST "+bp+"/api/v1/imports", authMw(startImport))
	mux.Handle("GET "+bp+"/api/v1/imports/current", authMw(http.HandlerFunc(r.handleCurrentImport)))
	mux.Handle("GET "+bp+"/api/v1/releases/{id}", authMw(http.HandlerFunc(r.handleGetRelease)))

	return middleware.Logging(r.logger)(middleware.SecurityHeaders(mux))
}
