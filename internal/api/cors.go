package api

import (
	"net/http"

	"github.com/rs/cors"
)

// withCORS admits browser callers from the single configured origin using
// GET and POST. An empty origin disables CORS headers entirely.
func (s *Server) withCORS(next http.Handler) http.Handler {
	if s.allowedOrigin == "" {
		return next
	}

	return cors.New(cors.Options{
		AllowedOrigins: []string{s.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(next)
}
