package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/config"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
	"github.com/osa030/rhythmbot/internal/infra/ytdlp"
)

const (
	videoURL    = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	playlistURL = "https://www.youtube.com/playlist?list=PL123"
)

type fixture struct {
	videos  *fakeVideos
	finder  *fakeFinder
	catalog *fakeCatalog
	deps    Deps
}

func newFixture() *fixture {
	f := &fixture{
		videos:  newFakeVideos(),
		finder:  &fakeFinder{results: make(map[string]ytdlp.Video)},
		catalog: &fakeCatalog{tracks: map[string]spotify.Track{}, albums: map[string][]spotify.Track{}, playlists: map[string][]spotify.Track{}},
	}
	f.deps = Deps{Videos: f.videos, Finder: f.finder, Catalog: f.catalog, MaxPlaylistItems: 100}
	return f
}

func (f *fixture) registry(t *testing.T) *Registry {
	t.Helper()
	r, err := Build([]config.ResolverConfig{{Type: "spotify"}, {Type: "youtube"}, {Type: "search"}}, f.deps)
	require.NoError(t, err)
	return r
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		cfgs    []config.ResolverConfig
		want    []string
		wantErr string
	}{
		{
			name: "configured order is kept",
			cfgs: []config.ResolverConfig{{Type: "search"}, {Type: "youtube"}},
			want: []string{"search", "youtube"},
		},
		{
			name:    "unknown type",
			cfgs:    []config.ResolverConfig{{Type: "soundcloud"}},
			wantErr: "unknown resolver type",
		},
		{
			name:    "duplicate type",
			cfgs:    []config.ResolverConfig{{Type: "youtube"}, {Type: "youtube"}},
			wantErr: "duplicate resolver type",
		},
		{
			name:    "invalid settings",
			cfgs:    []config.ResolverConfig{{Type: "search", Settings: map[string]any{"backend": "bing"}}},
			wantErr: "validation failed",
		},
		{
			name: "string numbers are accepted",
			cfgs: []config.ResolverConfig{{Type: "youtube", Settings: map[string]any{"max_playlist_items": "25"}}},
			want: []string{"youtube"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Build(tt.cfgs, newFixture().deps)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Names())
		})
	}
}

func TestRegistry_Match(t *testing.T) {
	r := newFixture().registry(t)

	tests := []struct {
		reference string
		want      string
	}{
		{"https://open.spotify.com/track/abc", "spotify"},
		{"spotify:playlist:xyz", "spotify"},
		{videoURL, "youtube"},
		{"https://soundcloud.com/artist/song", "youtube"},
		{"never gonna give you up", "search"},
		{"ftp://example.com/song.mp3", "search"},
	}

	for _, tt := range tests {
		t.Run(tt.reference, func(t *testing.T) {
			res, ok := r.Match(tt.reference)
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Name())
		})
	}
}

func TestRegistry_Resolve_Errors(t *testing.T) {
	f := newFixture()
	r := f.registry(t)
	c := &collector{}

	err := r.Resolve(context.Background(), "   ", c.emit)
	assert.True(t, errors.Is(err, media.ErrUserInput))

	err = r.Resolve(context.Background(), "https://www.youtube.com/watch?v=gone", c.emit)
	assert.True(t, errors.Is(err, media.ErrResolution))
	assert.Contains(t, err.Error(), "video unavailable")

	only, err := Build([]config.ResolverConfig{{Type: "youtube"}}, f.deps)
	require.NoError(t, err)
	err = only.Resolve(context.Background(), "plain text", c.emit)
	assert.True(t, errors.Is(err, media.ErrResolution))

	assert.Empty(t, c.entries)
}

func TestYouTubeResolver_Single(t *testing.T) {
	f := newFixture()
	f.videos.metadata[videoURL] = ytdlp.Video{URL: videoURL, Title: "Never Gonna Give You Up", Uploader: "Rick Astley", Duration: 213 * time.Second}
	c := &collector{}

	err := f.registry(t).Resolve(context.Background(), videoURL, c.emit)
	require.NoError(t, err)
	require.Len(t, c.entries, 1)

	e := c.entries[0]
	assert.Equal(t, videoURL, e.Reference)
	assert.Equal(t, "Never Gonna Give You Up", e.DisplayName)
	assert.Equal(t, "Rick Astley", e.Artist)
	assert.Equal(t, "00:03:33", e.Duration)
	assert.Equal(t, 213*time.Second, e.Length)
}

func TestYouTubeResolver_MissingTitle(t *testing.T) {
	f := newFixture()
	f.videos.metadata[videoURL] = ytdlp.Video{}
	c := &collector{}

	require.NoError(t, f.registry(t).Resolve(context.Background(), videoURL, c.emit))
	require.Len(t, c.entries, 1)
	assert.Equal(t, media.UnknownName, c.entries[0].DisplayName)
	assert.Equal(t, videoURL, c.entries[0].Reference)
	assert.Equal(t, "??:??:??", c.entries[0].DurationOrUnknown())
}

func TestYouTubeResolver_Playlist(t *testing.T) {
	f := newFixture()
	f.videos.playlists[playlistURL] = []ytdlp.Video{
		{URL: "https://www.youtube.com/watch?v=1", Title: "One"},
		{URL: "https://www.youtube.com/watch?v=2", Title: "Two"},
		{URL: "https://www.youtube.com/watch?v=3", Title: "Three"},
	}

	t.Run("emits in order", func(t *testing.T) {
		c := &collector{}
		require.NoError(t, f.registry(t).Resolve(context.Background(), playlistURL, c.emit))
		assert.Equal(t, []string{"One", "Two", "Three"}, c.names())
		assert.Equal(t, 100, f.videos.lastMax)
	})

	t.Run("settings override the item cap", func(t *testing.T) {
		r, err := Build([]config.ResolverConfig{{Type: "youtube", Settings: map[string]any{"max_playlist_items": 2}}}, f.deps)
		require.NoError(t, err)
		c := &collector{}
		require.NoError(t, r.Resolve(context.Background(), playlistURL, c.emit))
		assert.Equal(t, []string{"One", "Two"}, c.names())
	})

	t.Run("emit error stops the expansion", func(t *testing.T) {
		c := &collector{failAt: 2}
		err := f.registry(t).Resolve(context.Background(), playlistURL, c.emit)
		assert.True(t, errors.Is(err, media.ErrUserInput))
		assert.Len(t, c.entries, 2)
	})

	t.Run("expansion disabled resolves the linked video", func(t *testing.T) {
		withList := "https://www.youtube.com/watch?v=1&list=PL123"
		f.videos.metadata[withList] = ytdlp.Video{URL: "https://www.youtube.com/watch?v=1", Title: "One"}
		r, err := Build([]config.ResolverConfig{{Type: "youtube", Settings: map[string]any{"expand_playlists": false}}}, f.deps)
		require.NoError(t, err)
		c := &collector{}
		require.NoError(t, r.Resolve(context.Background(), withList, c.emit))
		assert.Equal(t, []string{"One"}, c.names())
	})
}

func TestYouTubeResolver_EmptyPlaylist(t *testing.T) {
	f := newFixture()
	f.videos.playlists[playlistURL] = nil
	c := &collector{}

	err := f.registry(t).Resolve(context.Background(), playlistURL, c.emit)
	assert.True(t, errors.Is(err, media.ErrResolution))
	assert.Empty(t, c.entries)
}

func TestIsPlaylistURL(t *testing.T) {
	assert.True(t, isPlaylistURL(playlistURL))
	assert.True(t, isPlaylistURL("https://www.youtube.com/watch?v=1&list=PL123"))
	assert.False(t, isPlaylistURL(videoURL))
	assert.False(t, isPlaylistURL("https://youtu.be/dQw4w9WgXcQ"))
}

func TestSearchResolver(t *testing.T) {
	t.Run("finder hit", func(t *testing.T) {
		f := newFixture()
		f.finder.results["daft punk one more time"] = ytdlp.Video{URL: videoURL, Title: "One More Time", Duration: 320 * time.Second}
		c := &collector{}

		require.NoError(t, f.registry(t).Resolve(context.Background(), "daft punk one more time", c.emit))
		assert.Equal(t, []string{"One More Time"}, c.names())
		assert.Empty(t, f.videos.searches)
	})

	t.Run("falls back to yt-dlp", func(t *testing.T) {
		f := newFixture()
		f.videos.search["obscure song"] = ytdlp.Video{URL: videoURL, Title: "Obscure Song"}
		c := &collector{}

		require.NoError(t, f.registry(t).Resolve(context.Background(), "obscure song", c.emit))
		assert.Equal(t, []string{"Obscure Song"}, c.names())
		assert.Equal(t, 1, f.finder.calls)
		assert.Equal(t, []string{"obscure song"}, f.videos.searches)
	})

	t.Run("ytdlp backend skips the finder", func(t *testing.T) {
		f := newFixture()
		f.videos.search["song"] = ytdlp.Video{URL: videoURL, Title: "Song"}
		r, err := Build([]config.ResolverConfig{{Type: "search", Settings: map[string]any{"backend": "ytdlp"}}}, f.deps)
		require.NoError(t, err)
		c := &collector{}

		require.NoError(t, r.Resolve(context.Background(), "song", c.emit))
		assert.Equal(t, 0, f.finder.calls)
	})

	t.Run("no results", func(t *testing.T) {
		f := newFixture()
		c := &collector{}

		err := f.registry(t).Resolve(context.Background(), "zzzz", c.emit)
		assert.True(t, errors.Is(err, media.ErrResolution))
		assert.Empty(t, c.entries)
	})
}

func TestSpotifyResolver(t *testing.T) {
	newSpotifyFixture := func() *fixture {
		f := newFixture()
		f.catalog.tracks["t1"] = spotify.Track{ID: "t1", Name: "Get Lucky", Artists: []string{"Daft Punk"}, Duration: 248 * time.Second}
		f.catalog.albums["a1"] = []spotify.Track{
			{Name: "One More Time", Artists: []string{"Daft Punk"}},
			{Name: "Unfindable", Artists: []string{"Nobody"}},
			{Name: "Digital Love", Artists: []string{"Daft Punk"}},
		}
		f.catalog.playlists["p1"] = []spotify.Track{{Name: "Unfindable", Artists: []string{"Nobody"}}}
		f.finder.results["Daft Punk - Get Lucky"] = ytdlp.Video{URL: "https://www.youtube.com/watch?v=lucky", Title: "Get Lucky (Official Audio)"}
		f.finder.results["Daft Punk - One More Time"] = ytdlp.Video{URL: "https://www.youtube.com/watch?v=omt", Title: "One More Time"}
		f.finder.results["Daft Punk - Digital Love"] = ytdlp.Video{URL: "https://www.youtube.com/watch?v=dl", Title: "Digital Love"}
		return f
	}

	t.Run("track is looked up by artist and title", func(t *testing.T) {
		f := newSpotifyFixture()
		c := &collector{}

		require.NoError(t, f.registry(t).Resolve(context.Background(), "https://open.spotify.com/track/t1?si=x", c.emit))
		require.Len(t, c.entries, 1)
		assert.Equal(t, "https://www.youtube.com/watch?v=lucky", c.entries[0].Reference)
		assert.Equal(t, 248*time.Second, c.entries[0].Length)
		assert.Equal(t, "Daft Punk", c.entries[0].Artist)
	})

	t.Run("album skips tracks without a match", func(t *testing.T) {
		f := newSpotifyFixture()
		c := &collector{}

		require.NoError(t, f.registry(t).Resolve(context.Background(), "spotify:album:a1", c.emit))
		assert.Equal(t, []string{"One More Time", "Digital Love"}, c.names())
	})

	t.Run("collection without any match fails", func(t *testing.T) {
		f := newSpotifyFixture()
		c := &collector{}

		err := f.registry(t).Resolve(context.Background(), "https://open.spotify.com/playlist/p1", c.emit)
		assert.True(t, errors.Is(err, media.ErrResolution))
	})

	t.Run("unknown track", func(t *testing.T) {
		f := newSpotifyFixture()
		c := &collector{}

		err := f.registry(t).Resolve(context.Background(), "spotify:track:missing", c.emit)
		assert.True(t, errors.Is(err, media.ErrResolution))
	})

	t.Run("disabled without credentials", func(t *testing.T) {
		f := newSpotifyFixture()
		f.deps.Catalog = nil
		c := &collector{}

		err := f.registry(t).Resolve(context.Background(), "spotify:track:t1", c.emit)
		assert.True(t, errors.Is(err, media.ErrResolution))
		assert.True(t, errors.Is(err, ErrSpotifyDisabled))
		assert.Empty(t, f.videos.searches)
	})
}
