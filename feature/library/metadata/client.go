package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"library-sync/core/retry"
	"library-sync/feature/library/models"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Client looks titles up on a TMDB compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	httpClient *http.Client
	retry      retry.Policy
	logger     *zap.Logger
}

// NewClient creates an API client. Transient failures are retried with policy.
func NewClient(cfg Config, policy retry.Policy, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy.Retryable = transient
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: timeout},
		retry:      policy,
		logger:     logger,
	}
}

// StatusError is a non-success API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata API returned status %d: %s", e.Code, e.Body)
}

func transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}

type genre struct {
	Name string `json:"name"`
}

type network struct {
	ID int64 `json:"id"`
}

type title struct {
	Title            string    `json:"title"`
	Name             string    `json:"name"`
	Overview         string    `json:"overview"`
	PosterPath       string    `json:"poster_path"`
	ReleaseDate      string    `json:"release_date"`
	FirstAirDate     string    `json:"first_air_date"`
	Genres           []genre   `json:"genres"`
	VoteAverage      float64   `json:"vote_average"`
	Runtime          int       `json:"runtime"`
	EpisodeRunTime   []int     `json:"episode_run_time"`
	NumberOfEpisodes int       `json:"number_of_episodes"`
	Networks         []network `json:"networks"`
}

// Lookup fetches the title details.
func (c *Client) Lookup(ctx context.Context, kind models.MediaKind, externalID int64) (*models.Media, error) {
	var t title
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.get(ctx, fmt.Sprintf("/%s/%d", kind, externalID), &t)
	})
	if err != nil {
		return nil, err
	}
	media := t.media(kind, externalID)
	return &media, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}

	c.logger.Debug("Making metadata API request", zap.String("path", path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (t title) media(kind models.MediaKind, externalID int64) models.Media {
	m := models.Media{
		ExternalID:  externalID,
		Kind:        kind,
		Title:       strings.TrimSpace(firstNonEmpty(t.Title, t.Name)),
		Overview:    strings.TrimSpace(t.Overview),
		PosterPath:  strings.TrimSpace(t.PosterPath),
		ReleaseDate: strings.TrimSpace(firstNonEmpty(t.ReleaseDate, t.FirstAirDate)),
	}
	for _, g := range t.Genres {
		m.Genres = append(m.Genres, g.Name)
	}
	for _, n := range t.Networks {
		m.Networks = append(m.Networks, n.ID)
	}
	if t.VoteAverage > 0 {
		r := math.Round(t.VoteAverage*10) / 10
		m.Rating = &r
	}
	m.RuntimeMinutes = t.totalRuntime(kind)
	return m
}

// totalRuntime is the movie runtime, or the average episode runtime times the
// episode count for series.
func (t title) totalRuntime(kind models.MediaKind) int {
	if kind == models.MediaMovie {
		return max(t.Runtime, 0)
	}
	if len(t.EpisodeRunTime) == 0 || t.NumberOfEpisodes <= 0 {
		return 0
	}
	sum := 0
	for _, r := range t.EpisodeRunTime {
		sum += r
	}
	return max(sum/len(t.EpisodeRunTime)*t.NumberOfEpisodes, 0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
