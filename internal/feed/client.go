// internal/feed/client.go
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"commit-tracker/internal/model"
)

// Format selects how the feed response is parsed.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// maxBodyBytes caps how much of a feed response is read.
const maxBodyBytes = 4 << 20

// ErrNoCommit is returned when the response holds no commit entry.
var ErrNoCommit = errors.New("no commit found in feed response")

// StatusError is returned when the feed responds with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed responded with status %d", e.StatusCode)
}

// Client reads the latest commit from a commit feed.
type Client struct {
	http   *http.Client
	format Format
	logger *slog.Logger
}

// NewClient creates a Client whose requests time out after timeout.
func NewClient(format Format, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		format: format,
		logger: logger,
	}
}

// FetchLatest returns the most recent commit published at feedURL.
func (c *Client) FetchLatest(ctx context.Context, feedURL string) (*model.FetchResult, error) {
	target := feedURL
	if c.format == FormatJSON {
		u, err := jsonURL(feedURL)
		if err != nil {
			return nil, err
		}
		target = u
	}

	c.logger.Debug("Fetching feed", "url", target, "format", c.format)
	body, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}

	var result *model.FetchResult
	switch c.format {
	case FormatHTML:
		result, err = parseHTML(body)
	default:
		result, err = parseJSON(body)
	}
	if err != nil {
		return nil, err
	}

	result.Commit.Link = permalink(feedURL, result.Commit.ID)
	return result, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if c.format == FormatJSON {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// jsonURL asks the feed for its JSON rendering of only the newest commit.
func jsonURL(feedURL string) (string, error) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("format", "json")
	if q.Get("take") == "" {
		q.Set("take", "1")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// permalink builds <scheme>://<host>/<id> from the feed URL.
func permalink(feedURL string, id int64) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/" + strconv.FormatInt(id, 10)}).String()
}
