// Package autofill provides strategies for refilling a drained queue.
package autofill

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
)

// Candidate is a reference proposed by a provider. The session resolves it
// like a user request.
type Candidate struct {
	Reference string // Link or search text
	Title     string
	Artist    string
}

// Key identifies the song for duplicate avoidance.
func (c Candidate) Key() string {
	if c.Title == "" {
		return strings.ToLower(strings.TrimSpace(c.Reference))
	}
	return SongKey(c.Artist, c.Title)
}

// SongKey builds the duplicate avoidance key of a song.
func SongKey(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "\x00" + strings.ToLower(strings.TrimSpace(title))
}

// Provider is the interface for autofill candidate providers.
// Different implementations can provide candidates through various strategies
// (e.g., playlist-based, recommendation-based, etc.).
type Provider interface {
	// GetCandidates retrieves candidates.
	// count: the number of candidates to retrieve
	// seeds: recently played songs, newest first, usable as hints for recommendations
	// exclude: keys of songs already queued or recently played
	GetCandidates(ctx context.Context, count int, seeds []Seed, exclude map[string]bool) ([]Candidate, error)

	// Name returns the provider name (used in config).
	Name() string
}

// Sampler picks random tracks from a Spotify playlist.
type Sampler interface {
	PlaylistTracksRandom(ctx context.Context, ref string, count int) ([]spotify.Track, error)
}

// Expander lists the entries behind a reference.
type Expander interface {
	Resolve(ctx context.Context, reference string, emit func(*media.Entry) error) error
}

// Seed is a played song reduced to artist and title.
type Seed struct {
	Artist string
	Title  string
}

// Key returns the duplicate avoidance key of the seed.
func (s Seed) Key() string {
	return SongKey(s.Artist, s.Title)
}

var (
	decorations = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	channelTail = regexp.MustCompile(`(?i)(\s*-\s*topic|vevo|\s+official)$`)
)

// SeedFromEntry guesses artist and title from an entry. Video titles of the
// form "Artist - Title (Official Video)" are split; otherwise the uploader is
// taken as the artist.
func SeedFromEntry(e *media.Entry) Seed {
	title := strings.TrimSpace(decorations.ReplaceAllString(e.DisplayName, ""))
	if artist, song, ok := strings.Cut(title, " - "); ok && artist != "" && song != "" {
		return Seed{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(song)}
	}
	artist := strings.TrimSpace(channelTail.ReplaceAllString(strings.TrimSpace(e.Artist), ""))
	return Seed{Artist: artist, Title: title}
}
