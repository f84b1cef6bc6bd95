// Package status derives the one-line session banner shown outside the chat.
package status

import (
	"context"
	"fmt"
	"sync"

	"github.com/osa030/rhythmbot/internal/domain/media"
	zlog "github.com/rs/zerolog/log"
)

// EmptyBanner is shown when nothing is queued.
const EmptyBanner = "No Songs In Queue"

// Snapshot is the part of the session state the banner depends on.
type Snapshot struct {
	Playing bool
	Paused  bool
	Length  int
	First   *media.Entry
	Second  *media.Entry
}

// Project returns the banner for s.
func Project(s Snapshot) string {
	if s.Length == 0 || s.First == nil {
		return EmptyBanner
	}
	if !s.Playing {
		return fmt.Sprintf("Up Next: \"%s\"", s.First.DisplayName)
	}
	if s.Paused {
		return fmt.Sprintf("Paused: \"%s\"", s.First.DisplayName)
	}
	if s.Length > 1 && s.Second != nil {
		return fmt.Sprintf("Now Playing: \"%s\", Up Next \"%s\"", s.First.DisplayName, s.Second.DisplayName)
	}
	return fmt.Sprintf("Now Playing: \"%s\"", s.First.DisplayName)
}

// Publisher displays a banner, e.g. as the bot presence.
type Publisher interface {
	Publish(ctx context.Context, banner string) error
}

// Dedup wraps a Publisher and drops banners equal to the last one published.
type Dedup struct {
	mu   sync.Mutex
	next Publisher
	last string
	sent bool
}

// NewDedup creates a deduplicating publisher.
func NewDedup(next Publisher) *Dedup {
	return &Dedup{next: next}
}

// Publish forwards banner unless it was the last one published successfully.
func (d *Dedup) Publish(ctx context.Context, banner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sent && d.last == banner {
		return nil
	}
	if err := d.next.Publish(ctx, banner); err != nil {
		return err
	}
	d.last = banner
	d.sent = true
	zlog.Debug().Msgf("status: banner published: %s", banner)
	return nil
}

// Discard is a Publisher that does nothing.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(context.Context, string) error { return nil }
