package discord

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
)

// Presence shows banners as the bot activity. It implements status.Publisher.
type Presence struct {
	bot *Bot
}

// NewPresence creates a presence publisher for b.
func NewPresence(b *Bot) *Presence {
	return &Presence{bot: b}
}

// Publish sets the playing activity to banner.
func (p *Presence) Publish(ctx context.Context, banner string) error {
	if err := p.bot.client.SetPresence(ctx,
		gateway.WithPlayingActivity(banner),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
	); err != nil {
		return errors.Wrap(err, "failed to set presence")
	}
	return nil
}
