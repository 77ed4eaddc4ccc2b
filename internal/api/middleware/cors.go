package middleware

import (
	"net/http"
)

// CORS returns a middleware that sets Cross-Origin Resource Sharing
// headers against a strict allowed-origins list.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	// Pragmatic development defaults when no explicit origins are
	// configured; "*" allows all.
	if len(allowedOrigins) == 0 {
		allowed["http://localhost:3000"] = true
		allowed["http://localhost:5173"] = true
		allowed["http://127.0.0.1:3000"] = true
		allowed["http://127.0.0.1:5173"] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowAll := allowed["*"]

			if origin != "" {
				if allowAll || allowed[origin] {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				// Not in the list: no header, the browser blocks it.
			} else {
				// No Origin header (curl, backend-to-backend).
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, Authorization")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.Header().Set("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")

			if r.Method == http.MethodOptions {
				w.Header().Set("Allow", "GET, POST, OPTIONS, DELETE")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
