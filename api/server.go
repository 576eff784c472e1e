/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. CORS:          Cross-origin requests for the HR frontend
  3. RequestLogger: httplog access log in ECS format on the given slog logger
  4. CleanPath:     Collapses double slashes
  5. Recoverer:     Panic recovery (500 instead of crash)
  6. Heartbeat:     GET /healthz for load balancers

ROUTE GROUPS:
  /api/employees/*  Employees, balances, requests, settlement
  /api/requests/*   Request lifecycle by request ID
  /api/policies     Active rule table
  /api/audit        Audit log

SECURITY NOTE:
  No authentication middleware. Actor IDs in request bodies are trusted;
  deploy behind an authenticating proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

type RouterOptions struct {
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	logger := opts.Logger
	if logger == nil {
		logger = h.Logger
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEmployee)

				r.Get("/balances", h.GetBalances)
				r.Post("/balances/initialize", h.InitializeBalances)
				r.Get("/balances/{category}/entries", h.GetEntries)

				r.Get("/requests", h.ListEmployeeRequests)
				r.Post("/requests", h.SubmitRequest)
				r.Get("/overlaps", h.GetOverlaps)

				r.Post("/settlement", h.ComputeSettlement)
				r.Post("/settlement/statement", h.SettlementStatement)
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/validate", h.ValidateRequest)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Get("/policies", h.GetPolicies)
		r.Get("/audit", h.QueryAudit)
	})

	return r
}

// NewLogger returns a JSON slog logger whose attributes follow the ECS
// schema used by the request logger.
func NewLogger(level slog.Level, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(env != "production")
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "leave-engine"),
		slog.String("env", env),
	)
}
