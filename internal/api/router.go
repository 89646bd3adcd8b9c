package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// The web client is served from a different origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"*"},
	}))

	r.Get("/", apiHandler.RootHandler)
	r.Get("/health", apiHandler.HealthHandler)
	r.Get("/status", apiHandler.StatusHandler)
	r.Post("/upload-pdf", apiHandler.UploadPDFHandler)
	r.Post("/chat", apiHandler.ChatHandler)
	r.Delete("/reset", apiHandler.ResetHandler)

	return r
}
