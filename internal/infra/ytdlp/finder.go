package ytdlp

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppalone/ytsearch"
)

// ErrNoResults is returned when a search matched nothing.
var ErrNoResults = errors.New("no results")

// Finder looks videos up through the YouTube search page, which is much
// faster than spawning yt-dlp for a search.
type Finder struct {
	client *ytsearch.Client
}

// NewFinder creates a Finder using the default HTTP client.
func NewFinder() *Finder {
	return &Finder{client: ytsearch.NewClient(nil)}
}

// Find returns the best match for query.
func (f *Finder) Find(ctx context.Context, query string) (*Video, error) {
	res, err := f.client.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "ytsearch")
	}
	for _, r := range res.Results {
		if r.VideoID == "" {
			continue
		}
		return &Video{
			URL:      "https://www.youtube.com/watch?v=" + r.VideoID,
			Title:    r.Title,
			Uploader: r.Channel,
			Duration: parseColonDuration(r.Duration),
		}, nil
	}
	return nil, ErrNoResults
}

// parseColonDuration parses "3:20" or "1:05:20". Anything else is zero.
func parseColonDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
