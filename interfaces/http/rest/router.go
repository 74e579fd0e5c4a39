package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"stackture/interfaces/http/rest/handlers"
	"stackture/interfaces/http/rest/middleware"
	pkgerrors "stackture/pkg/errors"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetricsCollector instruments requests and serves /metrics
type MetricsCollector interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

// RouterConfig carries what the router needs besides handlers
type RouterConfig struct {
	EnableCORS     bool
	AllowedOrigins []string
	Auth           middleware.AuthConfig
}

// Router creates and configures the HTTP router
type Router struct {
	nodes      *handlers.NodeHandler
	workspaces *handlers.WorkspaceHandler
	store      Pinger
	metrics    MetricsCollector
	errors     *pkgerrors.ErrorHandler
	config     RouterConfig
	logger     *zap.Logger
}

// NewRouter creates a new router instance. metrics may be nil.
func NewRouter(
	nodes *handlers.NodeHandler,
	workspaces *handlers.WorkspaceHandler,
	store Pinger,
	metrics MetricsCollector,
	errs *pkgerrors.ErrorHandler,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	return &Router{
		nodes:      nodes,
		workspaces: workspaces,
		store:      store,
		metrics:    metrics,
		errors:     errs,
		config:     cfg,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(rt.metrics.Middleware)
	}

	if rt.config.EnableCORS {
		origins := rt.config.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.config.Auth, rt.errors, rt.logger))

		r.Route("/nodes", func(r chi.Router) {
			r.Post("/create", rt.nodes.Create)
			r.Post("/add", rt.nodes.Add)
			r.Post("/borrow", rt.nodes.Borrow)
			r.Post("/drop", rt.nodes.Drop)
			r.Post("/take", rt.nodes.Take)
			r.Post("/delete", rt.nodes.Delete)
			r.Get("/{nodeID}", rt.nodes.Get)
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", rt.workspaces.Create)
			r.Get("/", rt.workspaces.List)
			r.Get("/{workspaceID}", rt.workspaces.Get)
			r.Delete("/{workspaceID}", rt.workspaces.Delete)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck reports ready once the store answers a ping
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := rt.store.Ping(ctx); err != nil {
		rt.logger.Warn("Readiness check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
