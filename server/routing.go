package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/teranos/attackls/logger"
)

// Handler returns the HTTP surface: LSP over WebSocket plus the JSON lookup API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /lsp", s.HandleGLSPWebSocket)                           // LSP over JSON-RPC (origin-checked)
	mux.HandleFunc("GET /health", s.HandleHealth)                               // Liveness and dataset size
	mux.Handle("GET /metrics", s.metrics.handler())                             // Prometheus lookup and session metrics
	mux.HandleFunc("GET /api/techniques/{id}", s.apiHandler(s.HandleTechnique)) // Technique detail with rendered markdown
	mux.HandleFunc("GET /api/techniques", s.apiHandler(s.HandleTechniques))     // Techniques by id prefix
	mux.HandleFunc("GET /api/complete", s.apiHandler(s.HandleComplete))         // Completion candidates for a term

	c := cors.New(cors.Options{
		AllowOriginFunc:  s.originAllowed,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
	})
	return c.Handler(mux)
}

// apiHandler adds a request id and the configured rate limit to an API endpoint
func (s *Server) apiHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter := s.rateLimiter(); limiter != nil && !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)

		start := time.Now()
		next(w, r.WithContext(ctx))

		s.logger.Debugw("API request",
			logger.FieldRequestID, requestID,
			logger.FieldMethod, r.Method,
			"path", r.URL.Path,
			logger.FieldRemote, r.RemoteAddr,
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
		)
	}
}
