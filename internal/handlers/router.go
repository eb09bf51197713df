package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uniapp/backend/internal/middleware"
)

type RouterConfig struct {
	Auth      *AuthHandler
	Profile   *ProfileHandler
	Image     *ImageHandler
	Directory *DirectoryHandler
	Live      *LiveHandler
	Gate      *middleware.SessionGate

	AllowedOrigins []string
	// UploadDir is served at /uploads/ when set.
	UploadDir string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", SearchTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", cfg.Auth.Register)
		r.Post("/auth/login", cfg.Auth.Login)
		r.Get("/auth/state", cfg.Auth.State)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(cfg.Gate.Require)

			r.Post("/auth/logout", cfg.Auth.Logout)

			r.Get("/profile", cfg.Profile.GetProfile)
			r.Patch("/profile", cfg.Profile.UpdateAboutMe)
			r.Post("/profile/picture", cfg.Image.UploadProfilePicture)

			r.Post("/uploads", cfg.Image.UploadStandalone)

			r.Get("/users", cfg.Directory.ListUsers)
			r.Get("/users/{userId}", cfg.Directory.GetUser)
		})
	})

	r.Get("/ws/session", cfg.Live.Session)
	r.Get("/ws/scores", cfg.Live.Scores)

	if cfg.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	return r
}
