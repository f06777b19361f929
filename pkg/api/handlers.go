package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hnidx/hnidx/pkg/search"
	"github.com/hnidx/hnidx/pkg/storage"
	"github.com/hnidx/hnidx/pkg/version"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

func (s *Server) HandleListItems(w http.ResponseWriter, r *http.Request) {
	page := 1
	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed >= 1 {
			page = parsed
		}
	}

	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed >= 1 && parsed <= maxListLimit {
			limit = parsed
		}
	}

	result, err := s.service.List(r.Context(), page, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list items", err.Error())
		return
	}

	items := result.Items
	if items == nil {
		items = []storage.Item{}
	}

	s.writeJSON(w, http.StatusOK, ListItemsResponse{
		Items: items,
		Count: len(items),
		Page:  result.Page,
		Limit: result.PageSize,
		Total: result.Total,
	})
}

func (s *Server) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid item id", "Item id must be an integer")
		return
	}

	item, err := s.service.Item(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Item not found", fmt.Sprintf("No item with id %d", id))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch item", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, item)
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := search.ParseQueryParams(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid search parameters", err.Error())
		return
	}

	result, err := s.service.Search(r.Context(), query)
	if err != nil {
		var verr *storage.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, "Invalid search parameters", verr.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	items := result.Items
	if items == nil {
		items = []storage.Item{}
	}

	// Total is -1 when counting was unavailable; page math only applies to
	// a known total.
	totalPages := int64(-1)
	hasMore := len(items) == result.PageSize
	if result.Total >= 0 {
		totalPages = (result.Total + int64(result.PageSize) - 1) / int64(result.PageSize)
		hasMore = int64(result.Page) < totalPages
	}

	s.writeJSON(w, http.StatusOK, SearchResponse{
		Query:      query.Text,
		Items:      items,
		Count:      len(items),
		Page:       result.Page,
		Limit:      result.PageSize,
		Total:      result.Total,
		TotalPages: totalPages,
		HasMore:    hasMore,
	})
}

func (s *Server) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	partial := r.URL.Query().Get("q")

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed >= 1 {
			limit = parsed
		}
	}

	suggestions, err := s.service.Suggest(r.Context(), partial, limit)
	if err != nil || suggestions == nil {
		suggestions = []string{}
	}

	s.writeJSON(w, http.StatusOK, SuggestResponse{
		Query:       partial,
		Suggestions: suggestions,
		Count:       len(suggestions),
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to collect stats", err.Error())
		return
	}

	response := StatsResponse{Stats: stats}
	if lastFetch, err := s.store.GetLastFetchTime(r.Context()); err == nil {
		response.LastFetch = lastFetch
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.service.RebuildIndex(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Rebuild failed", err.Error())
		return
	}

	s.logger.Infof("full-text index rebuilt via API")
	s.writeJSON(w, http.StatusOK, RebuildResponse{Status: "ok"})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
	})
}
