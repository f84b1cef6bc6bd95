// Package lastfm provides a read-only client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	cacheTTL       = time.Hour
)

// Client is a Last.fm API client.
// Tag lookups are cached, and all calls share a request rate limit.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey     string
	RatePerSec float64 // Zero selects the 5 requests per second allowed by Last.fm
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64 // Similarity in 0..1
}

// Tag represents a Last.fm tag.
type Tag struct {
	Name  string
	Count int // Tag count/frequency
}

// TopTrack represents a top track for a tag or the global chart.
type TopTrack struct {
	Name   string
	Artist string
}

type artistRef struct {
	Name string `json:"name"`
}

type getSimilarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string          `json:"name"`
			Match  json.RawMessage `json:"match"`
			Artist artistRef       `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

type getTopTagsResponse struct {
	TopTags struct {
		Tag []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"tag"`
	} `json:"toptags"`
}

type trackList struct {
	Track []struct {
		Name   string    `json:"name"`
		Artist artistRef `json:"artist"`
	} `json:"track"`
}

type getTopTracksResponse struct {
	Tracks trackList `json:"tracks"`
}

// apiError represents an error response from Last.fm API.
type apiError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		cache:      make(map[string]cacheEntry),
	}, nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))
	params.Set("autocorrect", "1")

	var response getSimilarResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	similar := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		similar = append(similar, SimilarTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Match:  parseMatch(t.Match),
		})
	}
	return similar, nil
}

// GetTopTags retrieves top tags for a track from Last.fm.
// Reference: https://www.last.fm/api/show/track.getTopTags
func (c *Client) GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]Tag, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit, 10)

	key := fmt.Sprintf("tracktag:%s:%s", artistName, trackName)
	if tags, ok := cached[[]Tag](c, key); ok {
		zlog.Debug().Msgf("lastfm: using cached tags for track: %s - %s", artistName, trackName)
		return truncate(tags, limit), nil
	}

	params := url.Values{}
	params.Set("method", "track.getTopTags")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("autocorrect", "1")

	var response getTopTagsResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	tags := make([]Tag, 0, len(response.TopTags.Tag))
	for _, t := range response.TopTags.Tag {
		tags = append(tags, Tag{Name: t.Name, Count: t.Count})
	}
	c.store(key, tags)

	return truncate(tags, limit), nil
}

// GetTopTracks retrieves top tracks for a tag from Last.fm.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit, 20)

	key := fmt.Sprintf("tagtracks:%s:%d", tagName, limit)
	if tracks, ok := cached[[]TopTrack](c, key); ok {
		zlog.Debug().Msgf("lastfm: using cached top tracks for tag: %s", tagName)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(limit))

	var response getTopTracksResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	tracks := convertTracks(response.Tracks)
	c.store(key, tracks)
	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit, 20)))

	// Same structure as tag.getTopTracks
	var response getTopTracksResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}
	return convertTracks(response.Tracks), nil
}

// get performs one API call and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Last.fm reports errors in the body, sometimes with status 200
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiErr.Code, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("last.fm API status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func cached[T any](c *Client, key string) (T, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	var zero T
	e, ok := c.cache[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expires) {
		delete(c.cache, key)
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

func (c *Client) store(key string, value any) {
	c.cacheMu.Lock()
	c.cache[key] = cacheEntry{value: value, expires: time.Now().Add(cacheTTL)}
	c.cacheMu.Unlock()
}

func convertTracks(l trackList) []TopTrack {
	tracks := make([]TopTrack, 0, len(l.Track))
	for _, t := range l.Track {
		tracks = append(tracks, TopTrack{Name: t.Name, Artist: t.Artist.Name})
	}
	return tracks
}

// parseMatch reads the similarity score, which Last.fm sends as a number or a string.
func parseMatch(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func truncate[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
