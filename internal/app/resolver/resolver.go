// Package resolver turns user supplied references into playable media entries.
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
	"github.com/osa030/rhythmbot/internal/infra/ytdlp"
)

// EmitFunc receives each resolved entry, in source order. Returning an error
// stops the resolution and the error is returned from Resolve.
type EmitFunc = func(*media.Entry) error

// Resolver resolves one family of references.
type Resolver interface {
	// Name returns the resolver type (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Configure decodes and validates the resolver settings.
	Configure(settings map[string]any) error
	// Supports reports whether reference belongs to this resolver.
	Supports(reference string) bool
	// Resolve calls emit once per entry. Playlists emit incrementally.
	Resolve(ctx context.Context, reference string, emit EmitFunc) error
}

// VideoSource is the yt-dlp surface used by resolvers.
type VideoSource interface {
	Search(ctx context.Context, query string, max int) ([]ytdlp.Video, error)
	Metadata(ctx context.Context, u string) (*ytdlp.Video, error)
	Playlist(ctx context.Context, u string, max int) ([]ytdlp.Video, error)
}

// Finder finds the best video for a search query.
type Finder interface {
	Find(ctx context.Context, query string) (*ytdlp.Video, error)
}

// Catalog is the Spotify surface used by the spotify resolver.
type Catalog interface {
	GetTrack(ctx context.Context, ref string) (*spotify.Track, error)
	AlbumTracks(ctx context.Context, ref string, max int, fn func(spotify.Track) error) error
	PlaylistTracks(ctx context.Context, ref string, max int, fn func(spotify.Track) error) error
}

// Deps are the backends shared by all resolvers.
type Deps struct {
	Videos           VideoSource
	Finder           Finder  // Optional, yt-dlp search is used when nil
	Catalog          Catalog // Optional, Spotify links fail when nil
	MaxPlaylistItems int
}

// registry holds registered resolver factories.
var registry = make(map[string]func(Deps) Resolver)

// Register registers a resolver factory.
func Register(name string, factory func(Deps) Resolver) {
	registry[name] = factory
}

// GetRegistered returns all registered resolver factories.
func GetRegistered() map[string]func(Deps) Resolver {
	return registry
}

// decodeSettings decodes settings into out, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func entryFromVideo(v ytdlp.Video, fallbackRef string) *media.Entry {
	ref := v.URL
	if ref == "" {
		ref = fallbackRef
	}
	e := media.NewEntry(ref, v.Title, "").WithLength(v.Duration)
	e.Artist = v.Uploader
	return e
}
