package api

import (
	"time"

	"github.com/hnidx/hnidx/pkg/storage"
)

type ListItemsResponse struct {
	Items []storage.Item `json:"items"`
	Count int            `json:"count"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int64          `json:"total"`
}

type SearchResponse struct {
	Query      string         `json:"query"`
	Items      []storage.Item `json:"items"`
	Count      int            `json:"count"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int64          `json:"total"`
	TotalPages int64          `json:"total_pages"`
	HasMore    bool           `json:"has_more"`
}

type SuggestResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
	Count       int      `json:"count"`
}

type StatsResponse struct {
	Stats     map[string]interface{} `json:"stats"`
	LastFetch time.Time              `json:"last_fetch,omitempty"`
}

type RebuildResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
