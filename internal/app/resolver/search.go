package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

// SearchConfig represents the configuration for SearchResolver.
type SearchConfig struct {
	// ytsearch queries the search page directly, ytdlp always spawns yt-dlp
	Backend string `mapstructure:"backend" default:"ytsearch" validate:"oneof=ytsearch ytdlp"`
}

// SearchResolver resolves free text to the single best matching video.
type SearchResolver struct {
	videos VideoSource
	finder Finder
	config SearchConfig
}

// NewSearchResolver creates a new search resolver.
func NewSearchResolver(deps Deps) *SearchResolver {
	return &SearchResolver{
		videos: deps.Videos,
		finder: deps.Finder,
		config: SearchConfig{Backend: "ytsearch"},
	}
}

func (r *SearchResolver) Name() string {
	return "search"
}

func (r *SearchResolver) Description() string {
	return "Resolves search text to the best matching video"
}

func (r *SearchResolver) Configure(settings map[string]any) error {
	var config SearchConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	r.config = config
	return nil
}

func (r *SearchResolver) Supports(reference string) bool {
	return strings.TrimSpace(reference) != "" && !isURL(reference)
}

func (r *SearchResolver) Resolve(ctx context.Context, reference string, emit EmitFunc) error {
	e, err := r.Lookup(ctx, reference)
	if err != nil {
		return err
	}
	return emit(e)
}

// Lookup returns the best match for query.
func (r *SearchResolver) Lookup(ctx context.Context, query string) (*media.Entry, error) {
	query = strings.TrimSpace(query)
	if r.finder != nil && r.config.Backend == "ytsearch" {
		v, err := r.finder.Find(ctx, query)
		if err == nil {
			return entryFromVideo(*v, ""), nil
		}
		zlog.Debug().Msgf("resolver: ytsearch failed, falling back to yt-dlp: query=%q err=%v", query, err)
	}

	videos, err := r.videos.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, errors.Newf("no results for %q", query)
	}
	return entryFromVideo(videos[0], ""), nil
}

func init() {
	Register("search", func(deps Deps) Resolver {
		return NewSearchResolver(deps)
	})
}
