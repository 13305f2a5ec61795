// Package middleware provides HTTP middleware for the legal assistant API.
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns middleware that handles CORS headers. Credentials (and so the
// identity cookie) are only allowed for explicitly listed origins; a wildcard
// entry serves any origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := false
	explicit := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		explicit = append(explicit, o)
	}

	opts := cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}
	switch {
	case len(explicit) > 0:
		opts.AllowedOrigins = explicit
		opts.AllowCredentials = true
	case wildcard:
		opts.AllowedOrigins = []string{"*"}
	}
	return cors.Handler(opts)
}
