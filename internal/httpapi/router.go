package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// NewRouter wires the engine's endpoints onto gorilla/mux, behind
// rs/cors and a request-ID/access-log middleware.
func NewRouter(s *Server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/query/{name}", s.HandleQuery).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/query/{name}/metadata", s.HandleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/api/query/{name}/export/{format}", s.HandleExport).Methods(http.MethodGet)
	r.HandleFunc("/api/select/{name}", s.HandleSelect).Methods(http.MethodGet)

	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(s.logger()))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func accessLogMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", w.Header().Get("X-Request-Id")),
			)
		})
	}
}
