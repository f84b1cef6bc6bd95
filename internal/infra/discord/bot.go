// Package discord connects the bot to the Discord gateway, REST API and voice.
package discord

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"
)

// Config represents the gateway configuration.
type Config struct {
	Token    string
	Dave     bool   // End-to-end encrypted voice
	Activity string // Presence shown until the first banner is published
}

// Message is a text message posted in a guild channel by a user.
type Message struct {
	ID         snowflake.ID
	GuildID    snowflake.ID
	ChannelID  snowflake.ID
	AuthorID   snowflake.ID
	AuthorName string
	Content    string
}

// Reaction is a reaction added by a user.
type Reaction struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	UserID    snowflake.ID
	Emoji     string
}

// Bot wraps the disgo client and dispatches the events the application handles.
type Bot struct {
	client *bot.Client

	mu           sync.RWMutex
	onMessage    func(Message)
	onReaction   func(Reaction)
	voiceHandler func(*events.GuildVoiceStateUpdate)
}

// New creates a bot. The gateway is not opened until Open.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}

	b := &Bot{}
	opts := []bot.ConfigOpt{
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildMessageReactions,
				gateway.IntentGuildVoiceStates,
			),
			gateway.WithPresenceOpts(
				gateway.WithPlayingActivity(cfg.Activity),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithEventListenerFunc(b.handleReady),
		bot.WithEventListenerFunc(b.handleMessageCreate),
		bot.WithEventListenerFunc(b.handleReactionAdd),
		bot.WithEventListenerFunc(b.handleVoiceStateUpdate),
	}
	if cfg.Dave {
		opts = append(opts, bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		))
	}

	client, err := disgo.New(cfg.Token, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord client")
	}
	b.client = client
	return b, nil
}

// Open connects to the gateway.
func (b *Bot) Open(ctx context.Context) error {
	if err := b.client.OpenGateway(ctx); err != nil {
		return errors.Wrap(err, "failed to open gateway")
	}
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close(ctx context.Context) {
	b.client.Close(ctx)
}

// SelfID returns the bot user ID.
func (b *Bot) SelfID() snowflake.ID {
	return b.client.ID()
}

// OnMessage sets the handler for user messages.
func (b *Bot) OnMessage(fn func(Message)) {
	b.mu.Lock()
	b.onMessage = fn
	b.mu.Unlock()
}

// OnReaction sets the handler for reactions added by users.
func (b *Bot) OnReaction(fn func(Reaction)) {
	b.mu.Lock()
	b.onReaction = fn
	b.mu.Unlock()
}

func (b *Bot) onVoiceState(fn func(*events.GuildVoiceStateUpdate)) {
	b.mu.Lock()
	b.voiceHandler = fn
	b.mu.Unlock()
}

func (b *Bot) handleReady(event *events.Ready) {
	zlog.Info().Msgf("discord: ready: user=%s id=%s", event.User.Username, event.User.ID)
}

func (b *Bot) handleMessageCreate(event *events.MessageCreate) {
	if event.Message.Author.Bot || event.GuildID == nil {
		return
	}
	b.mu.RLock()
	fn := b.onMessage
	b.mu.RUnlock()
	if fn == nil {
		return
	}
	fn(Message{
		ID:         event.Message.ID,
		GuildID:    *event.GuildID,
		ChannelID:  event.ChannelID,
		AuthorID:   event.Message.Author.ID,
		AuthorName: event.Message.Author.Username,
		Content:    event.Message.Content,
	})
}

func (b *Bot) handleReactionAdd(event *events.MessageReactionAdd) {
	if event.UserID == b.client.ID() || event.Emoji.Name == nil {
		return
	}
	b.mu.RLock()
	fn := b.onReaction
	b.mu.RUnlock()
	if fn == nil {
		return
	}
	var guildID snowflake.ID
	if event.GuildID != nil {
		guildID = *event.GuildID
	}
	fn(Reaction{
		GuildID:   guildID,
		ChannelID: event.ChannelID,
		MessageID: event.MessageID,
		UserID:    event.UserID,
		Emoji:     *event.Emoji.Name,
	})
}

func (b *Bot) handleVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	b.mu.RLock()
	fn := b.voiceHandler
	b.mu.RUnlock()
	if fn != nil {
		fn(event)
	}
}

// ParseID parses a snowflake from its string form.
func ParseID(s string) (snowflake.ID, error) {
	id, err := snowflake.Parse(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid discord id %q", s)
	}
	return id, nil
}
