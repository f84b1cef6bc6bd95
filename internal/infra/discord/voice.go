package discord

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

// ErrUserNotInVoice is returned when the requesting user is not in a voice channel.
var ErrUserNotInVoice = errors.New("User isn't on a voice channel!")

// VoiceConfig represents voice connection behaviour.
type VoiceConfig struct {
	Deafen     bool          // Join self-deafened
	AutoPause  bool          // Report when the bot is left alone in its channel
	Reconnect  bool          // Rejoin after an external disconnect
	Attempts   int           // Join attempts before giving up
	RetryDelay time.Duration // Delay between join attempts
}

// VoiceHooks are called on voice state changes.
type VoiceHooks struct {
	Alone        func(alone bool) // Called with AutoPause when the listener count crosses zero
	Disconnected func()           // Called when the connection is lost and not re-established
}

// Voice manages the single voice connection of the bot. It implements audio.Voice.
type Voice struct {
	bot   *Bot
	cfg   VoiceConfig
	hooks VoiceHooks

	joinMu sync.Mutex // Serializes joins; never held by event handlers

	mu        sync.Mutex
	conn      voice.Conn
	guildID   snowflake.ID
	channelID snowflake.ID
	provider  voice.OpusFrameProvider
	alone     bool
}

// NewVoice creates a voice connector and subscribes it to voice state updates.
func NewVoice(b *Bot, cfg VoiceConfig, hooks VoiceHooks) *Voice {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	v := &Voice{bot: b, cfg: cfg, hooks: hooks}
	b.onVoiceState(v.handleVoiceState)
	return v
}

// JoinUser joins the voice channel userID is in. It does nothing when
// already connected.
func (v *Voice) JoinUser(ctx context.Context, guildID, userID snowflake.ID) error {
	if v.Connected() {
		return nil
	}
	state, ok := v.bot.client.Caches.VoiceState(guildID, userID)
	if !ok || state.ChannelID == nil {
		return media.NewVoiceJoinError(ErrUserNotInVoice)
	}
	return v.Join(ctx, guildID, *state.ChannelID)
}

// JoinMember is JoinUser with IDs in string form.
func (v *Voice) JoinMember(ctx context.Context, guildID, userID string) error {
	g, err := ParseID(guildID)
	if err != nil {
		return media.NewVoiceJoinError(err)
	}
	u, err := ParseID(userID)
	if err != nil {
		return media.NewVoiceJoinError(err)
	}
	return v.JoinUser(ctx, g, u)
}

// Join connects to channelID, retrying failed attempts. A connection to
// another channel is closed first.
func (v *Voice) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	v.joinMu.Lock()
	defer v.joinMu.Unlock()

	v.mu.Lock()
	if v.conn != nil && v.channelID == channelID {
		v.mu.Unlock()
		return nil
	}
	old := v.detachLocked()
	v.mu.Unlock()
	closeConn(ctx, old)

	var lastErr error
	for attempt := 1; attempt <= v.cfg.Attempts; attempt++ {
		conn := v.bot.client.VoiceManager.CreateConn(guildID)
		err := conn.Open(ctx, channelID, false, v.cfg.Deafen)
		if err == nil {
			v.mu.Lock()
			v.conn = conn
			v.guildID = guildID
			v.channelID = channelID
			v.alone = false
			if v.provider != nil {
				conn.SetOpusFrameProvider(v.provider)
			}
			v.mu.Unlock()
			zlog.Info().Msgf("discord: joined voice: guild=%s channel=%s attempt=%d", guildID, channelID, attempt)
			return nil
		}

		lastErr = err
		conn.Close(ctx)
		zlog.Warn().Msgf("discord: voice join failed: channel=%s attempt=%d/%d err=%v", channelID, attempt, v.cfg.Attempts, err)
		if attempt == v.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return media.NewVoiceJoinError(ctx.Err())
		case <-time.After(v.cfg.RetryDelay):
		}
	}
	return media.NewVoiceJoinError(lastErr)
}

// Leave disconnects from voice. It reports whether a connection was closed.
func (v *Voice) Leave(ctx context.Context) bool {
	v.mu.Lock()
	conn := v.detachLocked()
	channelID := v.channelID
	v.mu.Unlock()

	if conn == nil {
		return false
	}
	zlog.Info().Msgf("discord: leaving voice: channel=%s", channelID)
	closeConn(ctx, conn)
	return true
}

// detachLocked forgets the current connection and returns it. Voice state
// updates caused by closing it are ignored since no connection is current.
func (v *Voice) detachLocked() voice.Conn {
	conn := v.conn
	v.conn = nil
	return conn
}

func closeConn(ctx context.Context, conn voice.Conn) {
	if conn == nil {
		return
	}
	conn.SetOpusFrameProvider(nil)
	conn.Close(ctx)
}

// ChannelID returns the connected channel, or 0.
func (v *Voice) ChannelID() snowflake.ID {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn == nil {
		return 0
	}
	return v.channelID
}

// Connected reports whether a voice connection is open.
func (v *Voice) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn != nil
}

// SetFrameProvider installs p on the current and any later connection.
func (v *Voice) SetFrameProvider(p voice.OpusFrameProvider) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.provider = p
	if v.conn != nil {
		v.conn.SetOpusFrameProvider(p)
	}
}

// SetSpeaking sets or clears the speaking indicator.
func (v *Voice) SetSpeaking(ctx context.Context, speaking bool) error {
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn == nil {
		return nil
	}
	var flags voice.SpeakingFlags
	if speaking {
		flags = voice.SpeakingFlagMicrophone
	}
	return conn.SetSpeaking(ctx, flags)
}

// Bitrate returns the bitrate of the connected channel in kbps, 0 when unknown.
func (v *Voice) Bitrate() int {
	id := v.ChannelID()
	if id == 0 {
		return 0
	}
	ch, ok := v.bot.client.Caches.Channel(id)
	if !ok {
		return 0
	}
	if ac, ok := ch.(interface{ Bitrate() int }); ok {
		return ac.Bitrate() / 1000
	}
	return 0
}

func (v *Voice) handleVoiceState(event *events.GuildVoiceStateUpdate) {
	state := event.VoiceState
	selfID := v.bot.SelfID()

	v.mu.Lock()
	if v.conn == nil || state.GuildID != v.guildID {
		v.mu.Unlock()
		return
	}

	if state.UserID == selfID {
		switch {
		case state.ChannelID == nil:
			v.handleDisconnectLocked()
		case *state.ChannelID != v.channelID:
			zlog.Info().Msgf("discord: moved to voice channel: from=%s to=%s", v.channelID, *state.ChannelID)
			v.channelID = *state.ChannelID
			v.mu.Unlock()
		default:
			v.mu.Unlock()
		}
		return
	}

	if !v.cfg.AutoPause {
		v.mu.Unlock()
		return
	}
	channelID := v.channelID
	v.mu.Unlock()

	caches := v.bot.client.Caches
	n := countListeners(caches.VoiceStates(state.GuildID), channelID, selfID, func(userID snowflake.ID) bool {
		m, ok := caches.Member(state.GuildID, userID)
		return ok && m.User.Bot
	})
	v.setAlone(n == 0)
}

// handleDisconnectLocked handles a disconnect the bot did not ask for. It
// releases v.mu; teardown and reconnect run on their own goroutine.
func (v *Voice) handleDisconnectLocked() {
	guildID, channelID := v.guildID, v.channelID
	conn := v.detachLocked()
	v.mu.Unlock()

	zlog.Warn().Msgf("discord: disconnected from voice: channel=%s reconnect=%t", channelID, v.cfg.Reconnect)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		closeConn(ctx, conn)

		if !v.cfg.Reconnect {
			v.disconnected()
			return
		}
		if err := v.Join(ctx, guildID, channelID); err != nil {
			zlog.Error().Msgf("discord: voice reconnect failed: channel=%s err=%v", channelID, err)
			v.disconnected()
		}
	}()
}

func (v *Voice) disconnected() {
	if v.hooks.Disconnected != nil {
		v.hooks.Disconnected()
	}
}

func (v *Voice) setAlone(alone bool) {
	v.mu.Lock()
	changed := v.alone != alone
	v.alone = alone
	v.mu.Unlock()

	if changed && v.hooks.Alone != nil {
		zlog.Debug().Msgf("discord: voice listeners changed: alone=%t", alone)
		v.hooks.Alone(alone)
	}
}

// countListeners counts the users other than the bot itself and other bots in channelID.
func countListeners(states iter.Seq[discord.VoiceState], channelID, selfID snowflake.ID, isBot func(snowflake.ID) bool) int {
	n := 0
	for s := range states {
		if s.ChannelID == nil || *s.ChannelID != channelID || s.UserID == selfID {
			continue
		}
		if isBot(s.UserID) {
			continue
		}
		n++
	}
	return n
}
