// Package ytdlp wraps the yt-dlp commands used to look up and stream media.
package ytdlp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// ErrDRM is returned for sources yt-dlp refuses because of DRM.
var ErrDRM = errors.New("source is DRM protected")

// Video is one item reported by yt-dlp.
type Video struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
}

// Client runs yt-dlp. The zero value is usable.
type Client struct {
	Proxy string // Passed to --proxy when set
}

const audioFormat = "bestaudio[ext=webm]/bestaudio"

func (c *Client) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if c.Proxy != "" {
		cmd.Proxy(c.Proxy)
	}
	return cmd
}

// Search returns up to max results for query.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Video, error) {
	if max <= 0 {
		max = 1
	}
	res, err := c.command().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("1-%d", max)).
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", max, query))
	if err != nil {
		return nil, wrapRunError(res, err, "search")
	}
	return parseVideos(res.Stdout), nil
}

// Metadata fetches title, uploader and duration of a single video.
func (c *Client) Metadata(ctx context.Context, u string) (*Video, error) {
	res, err := c.command().
		Print("%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s").
		NoPlaylist().
		Run(ctx, "--skip-download", u)
	if err != nil {
		return nil, wrapRunError(res, err, "metadata")
	}
	videos := parseVideos(res.Stdout)
	if len(videos) == 0 {
		return nil, errors.Newf("ytdlp: no metadata for %s", u)
	}
	return &videos[0], nil
}

// Playlist lists up to max entries of a playlist without resolving each one.
func (c *Client) Playlist(ctx context.Context, u string, max int) ([]Video, error) {
	cmd := c.command().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s")
	if max > 0 {
		cmd.PlaylistItems(fmt.Sprintf("1-%d", max))
	}
	res, err := cmd.Run(ctx, u)
	if err != nil {
		return nil, wrapRunError(res, err, "playlist")
	}
	return parseVideos(res.Stdout), nil
}

// StreamURL returns a direct URL of the best audio format of u.
func (c *Client) StreamURL(ctx context.Context, u string) (string, error) {
	res, err := c.command().
		Format(audioFormat).
		Print("%(url)s").
		NoPlaylist().
		NoCheckFormats().
		Run(ctx, "--skip-download", u)
	if err != nil {
		return "", wrapRunError(res, err, "stream url")
	}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			return line, nil
		}
	}
	return "", errors.Newf("ytdlp: no audio stream for %s", u)
}

func wrapRunError(res *ytdlp.Result, err error, op string) error {
	if res != nil {
		stderr := strings.ToLower(res.Stderr)
		if strings.Contains(stderr, "drm") {
			return errors.Mark(errors.Wrapf(err, "ytdlp: %s", op), ErrDRM)
		}
		zlog.Debug().Msgf("ytdlp: %s failed: stderr=%q", op, strings.TrimSpace(res.Stderr))
	}
	return errors.Wrapf(err, "ytdlp: %s", op)
}

// parseVideos parses tab separated url, title, uploader and duration lines.
// Lines with fewer than two fields are skipped.
func parseVideos(stdout string) []Video {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	videos := make([]Video, 0, len(lines))
	for _, l := range lines {
		ps := strings.Split(l, "\t")
		if len(ps) < 2 || strings.TrimSpace(ps[0]) == "" {
			continue
		}
		v := Video{URL: strings.TrimSpace(ps[0]), Title: cleanField(ps[1])}
		if len(ps) > 2 {
			v.Uploader = cleanField(ps[2])
		}
		if len(ps) > 3 {
			v.Duration = parseSeconds(ps[3])
		}
		videos = append(videos, v)
	}
	return videos
}

// cleanField maps the yt-dlp placeholder for missing values to "".
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" {
		return ""
	}
	return s
}

func parseSeconds(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s) + "s")
	if err != nil || d < 0 {
		return 0
	}
	return d
}
