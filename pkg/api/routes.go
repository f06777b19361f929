package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// API routes with method-specific routing
	mux.HandleFunc("GET /api/items", s.HandleListItems)
	mux.HandleFunc("GET /api/items/{id}", s.HandleGetItem)
	mux.HandleFunc("GET /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/suggest", s.HandleSuggest)
	mux.HandleFunc("GET /api/stats", s.HandleStats)
	mux.HandleFunc("POST /api/admin/rebuild", s.HandleRebuild)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
