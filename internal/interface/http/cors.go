package http

import (
	"net/http"

	"github.com/rs/cors"
)

// withCORS lets browser clients on the listed origins call the API. An empty list allows any origin.
func withCORS(handler http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{"Retry-After", requestIDHeader},
		MaxAge:         600,
	}).Handler(handler)
}
