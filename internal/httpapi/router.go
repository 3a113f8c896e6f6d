package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"stencil/internal/httpapi/handlers"
	"stencil/internal/httpkit"
	"stencil/internal/ims"
	"stencil/internal/pkg/logger"
	"stencil/internal/pkg/middleware"
)

type Deps struct {
	Store        handlers.TemplateStore
	Entitlements handlers.Entitlements
	Console      handlers.Installer
	Reviews      handlers.Reviews
	Verifier     ims.Verifier
	Pool         *pgxpool.Pool
	RDB          *redis.Client
	Log          *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.Logging(d.Log))

	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:8081",
		"http://localhost:5173",
	})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", handlers.OrgIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Store:        d.Store,
		Entitlements: d.Entitlements,
		Console:      d.Console,
		Reviews:      d.Reviews,
		Pool:         d.Pool,
		RDB:          d.RDB,
		Log:          d.Log,
	})

	r.Get("/health", h.Health)

	// Reads are public; a bearer token only enables entitlement annotation.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(d.Log, d.Verifier))
		r.Get("/templates", h.ListTemplates)
		r.Get("/templates/{templateName}", h.GetTemplate)
		r.Get("/templates/{orgName}/{templateName}", h.GetTemplate)
	})

	// Writes require a validated token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(d.Log, d.Verifier))
		r.Post("/templates", h.PostTemplate)
		r.Put("/templates/{templateName}", h.PutTemplate)
		r.Put("/templates/{orgName}/{templateName}", h.PutTemplate)
		r.Delete("/templates/{templateName}", h.DeleteTemplate)
		r.Delete("/templates/{orgName}/{templateName}", h.DeleteTemplate)
		r.Post("/templates/{templateName}/install", h.InstallTemplate)
		r.Post("/templates/{orgName}/{templateName}/install", h.InstallTemplate)
	})

	return r
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
