// Package hn is a minimal client for the Hacker News Firebase API. It only
// knows how to list the newest story ids and resolve individual items; all
// scheduling and persistence decisions belong to the caller.
package hn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://hacker-news.firebaseio.com/v0"

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// Item is a story as returned by the remote API.
type Item struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

// Client fetches stories from the Hacker News API. It is stateless and safe
// for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client against the public API.
func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint, used in tests.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewStoryIDs returns the ids of the newest stories, most recent first.
func (c *Client) NewStoryIDs(ctx context.Context) ([]int64, error) {
	url := fmt.Sprintf("%s/newstories.json", c.baseURL)

	var ids []int64
	if err := c.getJSON(ctx, url, &ids); err != nil {
		return nil, fmt.Errorf("fetching new story ids: %w", err)
	}

	return ids, nil
}

// Item fetches a single item. It returns (nil, nil) when the item does not
// exist, is deleted or dead, or is not a story.
func (c *Client) Item(ctx context.Context, id int64) (*Item, error) {
	url := fmt.Sprintf("%s/item/%d.json", c.baseURL, id)

	var item *Item
	if err := c.getJSON(ctx, url, &item); err != nil {
		return nil, fmt.Errorf("fetching item %d: %w", id, err)
	}

	// The API returns a JSON null for unknown ids.
	if item == nil || item.Deleted || item.Dead || item.Type != "story" {
		return nil, nil
	}

	return item, nil
}

// getJSON performs a GET with bounded retries on network errors and 5xx
// responses, decoding the body into v on success.
func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		retryable, err := c.doOnce(ctx, url, v)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, v interface{}) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			fmt.Printf("Warning: failed to close response body: %v\n", cerr)
		}
	}()

	if resp.StatusCode >= 500 {
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, err
	}

	return false, nil
}
