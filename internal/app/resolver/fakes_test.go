package resolver

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/spotify"
	"github.com/osa030/rhythmbot/internal/infra/ytdlp"
)

type fakeVideos struct {
	mu        sync.Mutex
	metadata  map[string]ytdlp.Video
	playlists map[string][]ytdlp.Video
	search    map[string]ytdlp.Video
	searches  []string
	lastMax   int
}

func newFakeVideos() *fakeVideos {
	return &fakeVideos{
		metadata:  make(map[string]ytdlp.Video),
		playlists: make(map[string][]ytdlp.Video),
		search:    make(map[string]ytdlp.Video),
	}
}

func (f *fakeVideos) Search(_ context.Context, query string, _ int) ([]ytdlp.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	if v, ok := f.search[query]; ok {
		return []ytdlp.Video{v}, nil
	}
	return nil, nil
}

func (f *fakeVideos) Metadata(_ context.Context, u string) (*ytdlp.Video, error) {
	if v, ok := f.metadata[u]; ok {
		return &v, nil
	}
	return nil, errors.New("ERROR: video unavailable")
}

func (f *fakeVideos) Playlist(_ context.Context, u string, max int) ([]ytdlp.Video, error) {
	f.lastMax = max
	vs, ok := f.playlists[u]
	if !ok {
		return nil, errors.New("ERROR: playlist does not exist")
	}
	if max > 0 && len(vs) > max {
		vs = vs[:max]
	}
	return vs, nil
}

type fakeFinder struct {
	results map[string]ytdlp.Video
	calls   int
}

func (f *fakeFinder) Find(_ context.Context, query string) (*ytdlp.Video, error) {
	f.calls++
	if v, ok := f.results[query]; ok {
		return &v, nil
	}
	return nil, ytdlp.ErrNoResults
}

type fakeCatalog struct {
	tracks    map[string]spotify.Track
	albums    map[string][]spotify.Track
	playlists map[string][]spotify.Track
}

func (f *fakeCatalog) GetTrack(_ context.Context, ref string) (*spotify.Track, error) {
	_, id, _ := spotify.ParseLink(ref)
	if t, ok := f.tracks[id]; ok {
		return &t, nil
	}
	return nil, errors.New("404 not found")
}

func (f *fakeCatalog) AlbumTracks(_ context.Context, ref string, max int, fn func(spotify.Track) error) error {
	_, id, _ := spotify.ParseLink(ref)
	return walk(f.albums[id], max, fn)
}

func (f *fakeCatalog) PlaylistTracks(_ context.Context, ref string, max int, fn func(spotify.Track) error) error {
	_, id, _ := spotify.ParseLink(ref)
	ts, ok := f.playlists[id]
	if !ok {
		return errors.New("404 not found")
	}
	return walk(ts, max, fn)
}

func walk(ts []spotify.Track, max int, fn func(spotify.Track) error) error {
	for i, t := range ts {
		if max > 0 && i >= max {
			return nil
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

// collector records emitted entries.
type collector struct {
	entries []*media.Entry
	failAt  int // Emit fails on this 1-based call when positive
}

func (c *collector) emit(e *media.Entry) error {
	c.entries = append(c.entries, e)
	if c.failAt > 0 && len(c.entries) == c.failAt {
		return media.NewUserInputError("queue is full")
	}
	return nil
}

func (c *collector) names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.DisplayName
	}
	return names
}
