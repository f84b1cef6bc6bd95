package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// YouTubeConfig represents the configuration for YouTubeResolver.
type YouTubeConfig struct {
	// Overrides queue.max_playlist_items when positive
	MaxPlaylistItems int  `mapstructure:"max_playlist_items" validate:"gte=0,lte=1000"`
	ExpandPlaylists  bool `mapstructure:"expand_playlists" default:"true"`
}

// YouTubeResolver resolves http(s) links with yt-dlp.
type YouTubeResolver struct {
	videos VideoSource
	max    int
	config YouTubeConfig
}

// NewYouTubeResolver creates a new link resolver.
func NewYouTubeResolver(deps Deps) *YouTubeResolver {
	return &YouTubeResolver{
		videos: deps.Videos,
		max:    deps.MaxPlaylistItems,
		config: YouTubeConfig{ExpandPlaylists: true},
	}
}

func (r *YouTubeResolver) Name() string {
	return "youtube"
}

func (r *YouTubeResolver) Description() string {
	return "Resolves video and playlist links with yt-dlp"
}

func (r *YouTubeResolver) Configure(settings map[string]any) error {
	var config YouTubeConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	r.config = config
	return nil
}

func (r *YouTubeResolver) Supports(reference string) bool {
	return isURL(reference)
}

func (r *YouTubeResolver) Resolve(ctx context.Context, reference string, emit EmitFunc) error {
	if r.config.ExpandPlaylists && isPlaylistURL(reference) {
		return r.resolvePlaylist(ctx, reference, emit)
	}

	v, err := r.videos.Metadata(ctx, reference)
	if err != nil {
		return err
	}
	return emit(entryFromVideo(*v, reference))
}

func (r *YouTubeResolver) resolvePlaylist(ctx context.Context, reference string, emit EmitFunc) error {
	max := r.max
	if r.config.MaxPlaylistItems > 0 {
		max = r.config.MaxPlaylistItems
	}

	videos, err := r.videos.Playlist(ctx, reference, max)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return errors.New("playlist is empty")
	}

	zlog.Debug().Msgf("resolver: playlist expanded url=%s items=%d", reference, len(videos))
	for _, v := range videos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(entryFromVideo(v, "")); err != nil {
			return err
		}
	}
	return nil
}

func isURL(reference string) bool {
	u, err := url.Parse(strings.TrimSpace(reference))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isPlaylistURL reports whether u is a playlist page or carries a list parameter.
func isPlaylistURL(reference string) bool {
	u, err := url.Parse(strings.TrimSpace(reference))
	if err != nil {
		return false
	}
	if strings.HasPrefix(u.Path, "/playlist") {
		return true
	}
	return u.Query().Get("list") != ""
}

func init() {
	Register("youtube", func(deps Deps) Resolver {
		return NewYouTubeResolver(deps)
	})
}
