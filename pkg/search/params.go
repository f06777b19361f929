package search

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hnidx/hnidx/pkg/storage"
)

const (
	defaultPageSize = 20
	maxRequestLimit = 1000
)

// ParseQueryParams turns HTTP query parameters into a storage.Query. Out of
// range page and limit values are clamped to defaults rather than rejected;
// malformed dates, scores and flags are reported as errors for the surface to
// map to a 400.
func ParseQueryParams(queryParams map[string][]string) (storage.Query, error) {
	q := storage.Query{
		Page:     1,
		PageSize: defaultPageSize,
		Sort:     storage.SortRelevance,
	}

	first := func(key string) string {
		if vals := queryParams[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}

	q.Text = first("q")
	q.Sort = storage.ParseSortOrder(first("sort"))

	if pageStr := first("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed >= 1 {
			q.Page = parsed
		}
	}

	if limitStr := first("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed >= 1 && parsed <= maxRequestLimit {
			q.PageSize = parsed
		}
	}
	// The store caps search pages at 100 rows.
	if q.PageSize > 100 {
		q.PageSize = 100
	}

	if sinceStr := first("since"); sinceStr != "" {
		parsed, err := parseDate(sinceStr)
		if err != nil {
			return q, fmt.Errorf("invalid since date %q: %w", sinceStr, err)
		}
		q.Filters.Since = &parsed
	}

	if untilStr := first("until"); untilStr != "" {
		parsed, err := parseDate(untilStr)
		if err != nil {
			return q, fmt.Errorf("invalid until date %q: %w", untilStr, err)
		}
		// A bare date means the whole day.
		if len(untilStr) == len("2006-01-02") {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 999999999, parsed.Location())
		}
		q.Filters.Until = &parsed
	}

	if minStr := first("min_score"); minStr != "" {
		parsed, err := strconv.Atoi(minStr)
		if err != nil {
			return q, fmt.Errorf("invalid min_score %q", minStr)
		}
		q.Filters.MinScore = &parsed
	}

	if maxStr := first("max_score"); maxStr != "" {
		parsed, err := strconv.Atoi(maxStr)
		if err != nil {
			return q, fmt.Errorf("invalid max_score %q", maxStr)
		}
		q.Filters.MaxScore = &parsed
	}

	q.Filters.Author = first("author")
	q.Filters.Domain = first("domain")

	if hasURLStr := first("has_url"); hasURLStr != "" {
		parsed, err := strconv.ParseBool(hasURLStr)
		if err != nil {
			return q, fmt.Errorf("invalid has_url %q", hasURLStr)
		}
		q.Filters.HasURL = &parsed
	}

	return q, nil
}

// parseDate accepts a bare date or a full RFC3339 timestamp, always in UTC
// when no zone is given.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
