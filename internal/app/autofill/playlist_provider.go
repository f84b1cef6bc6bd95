package autofill

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
)

type PlaylistProviderConfig struct {
	PlaylistURL string `yaml:"playlist_url" mapstructure:"playlist_url" validate:"required"`
	// Upper bound of entries read from non-Spotify playlists
	MaxItems int `yaml:"max_items" mapstructure:"max_items" default:"200" validate:"gte=1,lte=1000"`
}

// PlaylistProvider provides candidates by randomly selecting from a configured playlist.
// Spotify playlists are sampled a page at a time; other playlists are expanded once
// and kept in memory.
type PlaylistProvider struct {
	sampler        Sampler
	expander       Expander
	cache          []Candidate
	pool           []Candidate
	candidateCount int // Target cache size
	config         *PlaylistProviderConfig
	rng            *rand.Rand
}

// NewPlaylistProvider creates a new PlaylistProvider.
func NewPlaylistProvider(deps Deps, candidateCount int, settings map[string]any) (*PlaylistProvider, error) {
	var config PlaylistProviderConfig
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := mapstructure.WeakDecode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	zlog.Debug().Msgf("autofill: playlist provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	p := &PlaylistProvider{
		sampler:        deps.Sampler,
		expander:       deps.Expander,
		cache:          make([]Candidate, 0),
		candidateCount: candidateCount,
		config:         &config,
		rng:            newRand(),
	}
	if !p.usesSampler() && p.expander == nil {
		return nil, errors.New("playlist provider needs a resolver for non-Spotify playlists")
	}
	return p, nil
}

// GetCandidates retrieves random songs from the configured playlist.
// Maintains a cache to avoid redundant API calls when random selection returns duplicates.
func (p *PlaylistProvider) GetCandidates(ctx context.Context, count int, seeds []Seed, exclude map[string]bool) ([]Candidate, error) {
	if count <= 0 {
		return []Candidate{}, nil
	}

	// Filter cache to exclude songs already queued or played
	available := make([]Candidate, 0, len(p.cache))
	for _, c := range p.cache {
		if !exclude[c.Key()] {
			available = append(available, c)
		}
	}

	// If cache doesn't have enough candidates, fetch more
	if len(available) < count {
		needed := p.candidateCount - len(available)
		if needed < count {
			needed = count
		}
		fresh, err := p.fetch(ctx, needed)
		if err != nil {
			return nil, err
		}

		// Filter out duplicates and excluded songs
		for _, c := range fresh {
			if !exclude[c.Key()] && !containsKey(available, c.Key()) {
				available = append(available, c)
			}
		}
	}

	// Return requested count and update cache with remaining
	returnCount := count
	if returnCount > len(available) {
		returnCount = len(available)
	}

	result := available[:returnCount]
	p.cache = available[returnCount:]

	return result, nil
}

func (p *PlaylistProvider) fetch(ctx context.Context, n int) ([]Candidate, error) {
	if p.usesSampler() {
		tracks, err := p.sampler.PlaylistTracksRandom(ctx, p.config.PlaylistURL, n)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get random tracks from playlist")
		}
		out := make([]Candidate, 0, len(tracks))
		for _, t := range tracks {
			artist := ""
			if len(t.Artists) > 0 {
				artist = t.Artists[0]
			}
			out = append(out, Candidate{Reference: t.Query(), Title: t.Name, Artist: artist})
		}
		return out, nil
	}

	if p.pool == nil {
		pool := make([]Candidate, 0)
		err := p.expander.Resolve(ctx, p.config.PlaylistURL, func(e *media.Entry) error {
			s := SeedFromEntry(e)
			pool = append(pool, Candidate{Reference: e.Reference, Title: s.Title, Artist: s.Artist})
			if len(pool) >= p.config.MaxItems {
				return errPoolFull
			}
			return nil
		})
		if err != nil && !errors.Is(err, errPoolFull) {
			return nil, errors.Wrap(err, "failed to read playlist")
		}
		zlog.Info().Msgf("autofill: playlist loaded url=%s entries=%d", p.config.PlaylistURL, len(pool))
		p.pool = pool
	}

	picks := make([]Candidate, len(p.pool))
	copy(picks, p.pool)
	p.rng.Shuffle(len(picks), func(i, j int) {
		picks[i], picks[j] = picks[j], picks[i]
	})
	if len(picks) > n {
		picks = picks[:n]
	}
	return picks, nil
}

func (p *PlaylistProvider) usesSampler() bool {
	if p.sampler == nil {
		return false
	}
	kind, _, ok := spotify.ParseLink(p.config.PlaylistURL)
	return ok && kind == spotify.KindPlaylist
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string {
	return "playlist"
}

var errPoolFull = errors.New("playlist pool full")

// containsKey checks if a candidate key is in the slice.
func containsKey(cands []Candidate, key string) bool {
	for _, c := range cands {
		if c.Key() == key {
			return true
		}
	}
	return false
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
