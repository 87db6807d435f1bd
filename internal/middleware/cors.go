// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the configured browser origins to call the API with credentials, so the
// session cookie travels cross-origin.
func CORS(allowedOrigins []string, sessionHeader string) func(http.Handler) http.Handler {
	headers := []string{"Accept", "Content-Type"}
	var exposed []string
	if sessionHeader != "" {
		headers = append(headers, sessionHeader)
		exposed = append(exposed, sessionHeader)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   headers,
		ExposedHeaders:   exposed,
		AllowCredentials: true,
		MaxAge:           300,
	})
}
