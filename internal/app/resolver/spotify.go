package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
)

// ErrSpotifyDisabled is returned for Spotify links when no credentials are configured.
var ErrSpotifyDisabled = errors.New("spotify links need spotify.client_id and spotify.client_secret")

// SpotifyConfig represents the configuration for SpotifyResolver.
type SpotifyConfig struct {
	// Overrides queue.max_playlist_items when positive
	MaxItems int `mapstructure:"max_items" validate:"gte=0,lte=1000"`
}

// SpotifyResolver resolves Spotify links by looking each track up by artist and title.
type SpotifyResolver struct {
	catalog Catalog
	search  *SearchResolver
	max     int
	config  SpotifyConfig
}

// NewSpotifyResolver creates a new Spotify resolver.
func NewSpotifyResolver(deps Deps) *SpotifyResolver {
	return &SpotifyResolver{
		catalog: deps.Catalog,
		search:  NewSearchResolver(deps),
		max:     deps.MaxPlaylistItems,
	}
}

func (r *SpotifyResolver) Name() string {
	return "spotify"
}

func (r *SpotifyResolver) Description() string {
	return "Resolves Spotify track, album and playlist links through search"
}

func (r *SpotifyResolver) Configure(settings map[string]any) error {
	var config SpotifyConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	r.config = config
	return nil
}

func (r *SpotifyResolver) Supports(reference string) bool {
	_, _, ok := spotify.ParseLink(reference)
	return ok
}

func (r *SpotifyResolver) Resolve(ctx context.Context, reference string, emit EmitFunc) error {
	if r.catalog == nil {
		return media.NewResolutionError(reference, ErrSpotifyDisabled)
	}

	kind, _, ok := spotify.ParseLink(reference)
	if !ok {
		return errors.Newf("not a spotify link: %s", reference)
	}

	switch kind {
	case spotify.KindTrack:
		t, err := r.catalog.GetTrack(ctx, reference)
		if err != nil {
			return err
		}
		e, err := r.lookup(ctx, *t)
		if err != nil {
			return err
		}
		return emit(e)
	case spotify.KindAlbum:
		return r.expand(ctx, reference, r.catalog.AlbumTracks, emit)
	default:
		return r.expand(ctx, reference, r.catalog.PlaylistTracks, emit)
	}
}

type trackWalker func(ctx context.Context, ref string, max int, fn func(spotify.Track) error) error

// expand looks up every track of a collection. Tracks without a match are skipped.
func (r *SpotifyResolver) expand(ctx context.Context, reference string, walk trackWalker, emit EmitFunc) error {
	max := r.max
	if r.config.MaxItems > 0 {
		max = r.config.MaxItems
	}

	emitted, missed := 0, 0
	err := walk(ctx, reference, max, func(t spotify.Track) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := r.lookup(ctx, t)
		if err != nil {
			missed++
			zlog.Warn().Msgf("resolver: no match for spotify track=%q err=%v", t.Query(), err)
			return nil
		}
		emitted++
		return emit(e)
	})
	if err != nil {
		return err
	}
	if emitted == 0 {
		return errors.Newf("none of %d tracks could be found", missed)
	}
	if missed > 0 {
		zlog.Info().Msgf("resolver: spotify collection expanded ref=%s found=%d missed=%d", reference, emitted, missed)
	}
	return nil
}

func (r *SpotifyResolver) lookup(ctx context.Context, t spotify.Track) (*media.Entry, error) {
	e, err := r.search.Lookup(ctx, t.Query())
	if err != nil {
		return nil, err
	}
	if e.Length == 0 {
		e.WithLength(t.Duration)
	}
	if e.Artist == "" && len(t.Artists) > 0 {
		e.Artist = t.Artists[0]
	}
	return e, nil
}

func init() {
	Register("spotify", func(deps Deps) Resolver {
		return NewSpotifyResolver(deps)
	})
}
