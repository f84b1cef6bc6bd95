// Package spotify provides a read-only client for the Spotify catalog.
package spotify

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// pageLimit is the Spotify API maximum page size for playlist items.
const pageLimit = 100

// albumPageLimit is the Spotify API maximum page size for album tracks.
const albumPageLimit = 50

// Kind is the catalog object a link points at.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
)

// Track is the subset of catalog metadata needed to find a playable source.
type Track struct {
	ID       string
	Name     string
	Artists  []string
	Album    string
	Duration time.Duration
	URL      string
}

// Query returns the search text used to look the track up on a video site.
func (t Track) Query() string {
	if len(t.Artists) == 0 {
		return t.Name
	}
	return fmt.Sprintf("%s - %s", strings.Join(t.Artists, ", "), t.Name)
}

// Client is a Spotify API client authenticated with client credentials.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	// App-only token, refreshed by the oauth2 transport
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := cc.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(cc.Client(ctx)),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, ref string) (*Track, error) {
	id := extractID(ref, KindTrack)
	if id == "" {
		return nil, errors.New("invalid track link")
	}

	var result *spotify.FullTrack
	err := c.retry(func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	t := convertTrack(result.SimpleTrack)
	t.Album = result.Album.Name
	return &t, nil
}

// AlbumTracks calls fn for each track of an album, in album order, stopping after max tracks
// when max is positive. An error from fn stops the walk and is returned as is.
func (c *Client) AlbumTracks(ctx context.Context, ref string, max int, fn func(Track) error) error {
	id := extractID(ref, KindAlbum)
	if id == "" {
		return errors.New("invalid album link")
	}

	seen := 0
	offset := 0
	for {
		var page *spotify.SimpleTrackPage
		err := c.retry(func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(id),
				spotify.Limit(albumPageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to get album tracks")
		}

		for _, t := range page.Tracks {
			if err := fn(convertTrack(t)); err != nil {
				return err
			}
			seen++
			if max > 0 && seen >= max {
				return nil
			}
		}

		if len(page.Tracks) < albumPageLimit {
			return nil
		}
		offset += albumPageLimit
	}
}

// PlaylistTracks calls fn for each track of a playlist, in playlist order, stopping after max
// tracks when max is positive. Episodes and unavailable items are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, ref string, max int, fn func(Track) error) error {
	id := extractID(ref, KindPlaylist)
	if id == "" {
		return errors.New("invalid playlist link")
	}

	seen := 0
	offset := 0
	for {
		page, err := c.playlistPage(ctx, id, pageLimit, offset)
		if err != nil {
			return err
		}

		for _, t := range playlistTracks(page) {
			if err := fn(t); err != nil {
				return err
			}
			seen++
			if max > 0 && seen >= max {
				return nil
			}
		}

		if len(page.Items) < pageLimit {
			return nil
		}
		offset += pageLimit
	}
}

// PlaylistTracksRandom retrieves a random sample of tracks from a playlist.
// First gets the total track count, then fetches a random page and returns up to count tracks.
func (c *Client) PlaylistTracksRandom(ctx context.Context, ref string, count int) ([]Track, error) {
	id := extractID(ref, KindPlaylist)
	if id == "" {
		return nil, errors.New("invalid playlist link")
	}

	firstPage, err := c.playlistPage(ctx, id, 1, 0)
	if err != nil {
		return nil, err
	}

	total := int(firstPage.Total)
	if total == 0 {
		return []Track{}, nil
	}

	// Limit the offset so the page still holds enough tracks
	maxOffset := total - pageLimit
	if maxOffset < 0 {
		maxOffset = 0
	}

	rng := newRand()
	offset := 0
	if maxOffset > 0 {
		offset = rng.Intn(maxOffset + 1)
	}

	page, err := c.playlistPage(ctx, id, pageLimit, offset)
	if err != nil {
		return nil, err
	}

	tracks := playlistTracks(page)
	if len(tracks) > count {
		rng.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
		tracks = tracks[:count]
	}

	return tracks, nil
}

func (c *Client) playlistPage(ctx context.Context, id string, limit, offset int) (*spotify.PlaylistItemPage, error) {
	var page *spotify.PlaylistItemPage
	err := c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
			spotify.Limit(limit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get playlist items")
	}
	return page, nil
}

func playlistTracks(page *spotify.PlaylistItemPage) []Track {
	tracks := make([]Track, 0, len(page.Items))
	for _, item := range page.Items {
		// Only process tracks (exclude episodes)
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			t := convertTrack(item.Track.Track.SimpleTrack)
			t.Album = item.Track.Track.Album.Name
			tracks = append(tracks, t)
		}
	}
	return tracks
}

func convertTrack(t spotify.SimpleTrack) Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	return Track{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artists,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		URL:      TrackURL(string(t.ID)),
	}
}

// TrackURL returns the Spotify URL for a track.
func TrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// ParseLink reports which catalog object a Spotify URL or URI points at.
// ok is false for anything that is not a Spotify link.
func ParseLink(input string) (kind Kind, id string, ok bool) {
	input = strings.TrimSpace(input)
	for _, k := range []Kind{KindTrack, KindAlbum, KindPlaylist} {
		if !isLink(input, k) {
			continue
		}
		if id := extractID(input, k); id != "" {
			return k, id, true
		}
	}
	return "", "", false
}

func isLink(input string, kind Kind) bool {
	if strings.HasPrefix(input, "spotify:"+string(kind)+":") {
		return true
	}
	return strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/"+string(kind)+"/")
}

// extractID extracts the object ID from a Spotify URL or URI of the given kind.
// Input that is not a link is assumed to be an ID already.
func extractID(input string, kind Kind) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:KIND:ID
	uriPrefix := "spotify:" + string(kind) + ":"
	if strings.HasPrefix(input, uriPrefix) {
		return strings.TrimPrefix(input, uriPrefix)
	}

	// Handle URL format: https://open.spotify.com/KIND/ID or https://open.spotify.com/intl-XX/KIND/ID
	sep := "/" + string(kind) + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
