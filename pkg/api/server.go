// Package api is the JSON HTTP surface. It owns parameter parsing and HTTP
// status mapping; all query semantics live in the service and storage layers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hnidx/hnidx/pkg/log"
	"github.com/hnidx/hnidx/pkg/search"
	"github.com/hnidx/hnidx/pkg/storage"
)

type Server struct {
	service *search.Service
	store   *storage.Store
	logger  *log.Logger
}

func NewServer(service *search.Service, store *storage.Store) *Server {
	return &Server{
		service: service,
		store:   store,
		logger:  log.ForService("api"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware tags every request with an id, honoring one supplied by
// the caller, and echoes it back in the response headers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	logger := log.ForService("api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		logger.Debugf("%s %s request_id=%s", r.Method, r.URL.Path, id)

		next.ServeHTTP(w, r)
	})
}
