package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/grvbrk/vidcatalog_server/internal/app"
)

func SetupRoutes(app *app.Application) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(app.MiddlewareHandler.Instrument)
	r.Use(app.MiddlewareHandler.RequestLogger)
	r.Use(app.MiddlewareHandler.Security)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	r.Use(httprate.LimitAll(app.Config.RateLimitPerMinute, time.Minute))

	r.Get("/health", app.UserHandler.HandlerHealth)
	r.Handle("/metrics", app.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(app.MiddlewareHandler.Authenticate)

		r.Get("/", app.UserHandler.HandlerWhoAmI)

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", app.VideoHandler.HandlerListVideos)
			r.Post("/", app.VideoHandler.HandlerUploadVideo)
			r.Get("/{id}", app.VideoHandler.HandlerGetVideoByID)
			r.Delete("/{id}", app.VideoHandler.HandlerDeleteVideoByID)
		})

		r.Get("/myVideos", app.VideoHandler.HandlerMyVideos)
		r.Get("/myVideos/", app.VideoHandler.HandlerMyVideos)
		r.Get("/search", app.VideoHandler.HandlerSearchVideos)
		r.Get("/search/", app.VideoHandler.HandlerSearchVideos)
	})

	return r
}
