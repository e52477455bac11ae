package server

import (
	"net/http"
	"strings"

	"aceinterview/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/health", s.healthHandler)
	r.Get("/stats", s.statsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Use(s.rateLimitMiddleware(om))
		api.Use(s.authMiddleware)
		api.Use(s.requestSizeLimitMiddleware)

		api.Get("/catalog", s.catalogHandler)

		api.Post("/sessions", s.createSessionHandler(om))
		api.Route("/sessions/{id}", func(sr chi.Router) {
			sr.Use(observability.SessionAttributes(func(r *http.Request) string {
				return chi.URLParam(r, "id")
			}))
			sr.Get("/", s.getSessionHandler)
			sr.Delete("/", s.deleteSessionHandler)
			sr.Post("/resume", s.uploadResumeHandler(om))
			sr.Post("/questions", s.questionsHandler(om))
			sr.Post("/answers", s.answerHandler(om))
			sr.Get("/results", s.resultsHandler)
		})
	})

	return r
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:         300,
	}
	if s.AppConfig != nil {
		opts.AllowedOrigins = s.AppConfig.Server.CORS.AllowedOrigins
		opts.AllowCredentials = s.AppConfig.Server.CORS.AllowCredentials
		if s.AppConfig.Server.CORS.MaxAge > 0 {
			opts.MaxAge = s.AppConfig.Server.CORS.MaxAge
		}
	}
	return opts
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if len(s.APIKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := extractAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys[apiKey] {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key_prefix", maskAPIKey(apiKey))

		next.ServeHTTP(w, r)
	})
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
		}
		next.ServeHTTP(w, r)
	})
}

// extractAPIKey reads X-API-Key, falling back to an Authorization bearer token
func extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return after
	}
	return ""
}

// maskAPIKey masks an API key for logging (shows only first 8 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:8] + "****"
}
