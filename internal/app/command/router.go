// Package command implements the text command and reaction surface of the bot.
package command

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/osa030/rhythmbot/internal/infra/config"
)

// Message is a chat message that may carry a command.
type Message struct {
	GuildID    string
	ChannelID  string
	AuthorID   string
	AuthorName string
	Content    string
}

// Requester returns the author as a requester.
func (m Message) Requester() media.Requester {
	return media.Requester{ID: m.AuthorID, Name: m.AuthorName}
}

// Reaction is a reaction added by a user to a message.
type Reaction struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Emoji     string
}

// Player is the part of the playback engine commands drive.
type Player interface {
	Play()
	Pause() bool
	Stop() bool
	Skip(silent bool)
	Remove(index int) (*media.Entry, error)
	Clear() int
	Shuffle()
	Move(cur, target int) (*media.Entry, int, bool)
	SetVolume(percent int) string
	Volume() string
	ToggleRepeat() bool
	SetChannel(channel string)
	Entries() []*media.Entry
	NowPlaying() (*media.Entry, time.Duration, bool)
}

// Request asks the session to resolve and enqueue references.
type Request struct {
	GuildID    string
	ChannelID  string
	Requester  media.Requester
	References []string
	Join       bool // Join the requester's voice channel and start playback when idle
}

// Session resolves requests and owns the voice connection.
type Session interface {
	Request(ctx context.Context, req Request) error
	Leave(ctx context.Context) bool
}

// Messages gives access to the messages the bot has sent.
type Messages interface {
	// Lookup returns the entry behind a bot message. The second result is false for unknown messages.
	Lookup(messageID string) (*media.Entry, bool)
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error
}

// Notifier shows notices to users.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notice)
}

// Context is the invocation of a command.
type Context struct {
	Message
	Name string
	Args []string
}

// Handler runs a command. Errors are reported to the invoking channel.
type Handler func(ctx context.Context, c *Context) error

// Command is a named command.
type Command struct {
	Name        string
	Aliases     []string
	Usage       string // Arguments shown in help, e.g. "<n> <m|up|down>"
	Description string
	Handler     Handler
}

// Config represents router configuration.
type Config struct {
	Prefix     string
	Help       string // Replaces the generated help text when set
	Emojis     config.EmojisConfig
	RatePerSec float64
	Burst      int
}

// Deps are the collaborators of the router.
type Deps struct {
	Player   Player
	Session  Session
	Notifier Notifier
	Messages Messages // Optional; reactions are ignored without it
}

// Router parses messages and dispatches commands and reactions.
type Router struct {
	cfg      Config
	player   Player
	session  Session
	notifier Notifier
	messages Messages

	mu       sync.RWMutex
	commands map[string]*Command
	order    []*Command

	limiter *userLimiter
	rng     *rand.Rand
	rngMu   sync.Mutex
}

// NewRouter creates a router with the built-in commands registered.
func NewRouter(cfg Config, deps Deps) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	r := &Router{
		cfg:      cfg,
		player:   deps.Player,
		session:  deps.Session,
		notifier: deps.Notifier,
		messages: deps.Messages,
		commands: make(map[string]*Command),
		limiter:  newUserLimiter(cfg.RatePerSec, cfg.Burst),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command. A command with the same name or alias is replaced.
func (r *Router) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd := &c
	if prev, ok := r.commands[strings.ToLower(c.Name)]; ok {
		for i, o := range r.order {
			if o == prev {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.order = append(r.order, cmd)
	r.commands[strings.ToLower(c.Name)] = cmd
	for _, a := range c.Aliases {
		r.commands[strings.ToLower(a)] = cmd
	}
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmds := make([]Command, len(r.order))
	for i, c := range r.order {
		cmds[i] = *c
	}
	return cmds
}

func (r *Router) lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Parse splits content into a lower case command name and its arguments.
// ok is false when content does not start with prefix or names no command.
func Parse(prefix, content string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// HandleMessage runs the command in m, if any. It reports whether m named a
// known command.
func (r *Router) HandleMessage(ctx context.Context, m Message) bool {
	name, args, ok := Parse(r.cfg.Prefix, m.Content)
	if !ok {
		return false
	}
	cmd, ok := r.lookup(name)
	if !ok {
		zlog.Debug().Msgf("command: unknown command: name=%s user=%s", name, m.AuthorID)
		return false
	}
	if !r.limiter.allow(m.AuthorID) {
		zlog.Debug().Msgf("command: throttled: name=%s user=%s", name, m.AuthorID)
		return true
	}

	r.player.SetChannel(m.ChannelID)
	zlog.Info().Msgf("command: %s: user=%s args=%q", cmd.Name, m.AuthorName, args)

	c := &Context{Message: m, Name: name, Args: args}
	if err := r.run(ctx, cmd, c); err != nil {
		r.reportError(ctx, m.ChannelID, err)
	}
	return true
}

// run calls the handler, turning a panic into an error.
func (r *Router) run(ctx context.Context, cmd *Command, c *Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			zlog.Error().Msgf("command: panic in %s: %v", cmd.Name, p)
			err = errors.Newf("command %s failed", cmd.Name)
		}
	}()
	return cmd.Handler(ctx, c)
}

func (r *Router) reportError(ctx context.Context, channel string, err error) {
	switch media.Classify(err) {
	case media.ErrUserInput, media.ErrVoiceJoin, media.ErrResolution:
		zlog.Info().Msgf("command: rejected: %v", err)
	default:
		zlog.Error().Msgf("command: failed: %v", err)
	}
	r.notify(ctx, notification.Error(channel, userMessage(err)))
}

// userMessage returns the text shown for err. Voice join failures show
// their root cause.
func userMessage(err error) string {
	if errors.Is(err, media.ErrVoiceJoin) {
		return errors.UnwrapAll(err).Error()
	}
	return err.Error()
}

func (r *Router) notify(ctx context.Context, n notification.Notice) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, n)
	}
}

func (r *Router) reply(ctx context.Context, c *Context, title, body string) {
	r.notify(ctx, notification.Info(c.ChannelID, title, body))
}

func (r *Router) pick(phrases []string) string {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return phrases[r.rng.Intn(len(phrases))]
}

// HandleReaction applies a reaction on a bot message. The reaction is removed afterwards.
func (r *Router) HandleReaction(ctx context.Context, rc Reaction) {
	if r.messages == nil {
		return
	}
	entry, ok := r.messages.Lookup(rc.MessageID)
	if !ok {
		return
	}
	if !r.limiter.allow(rc.UserID) {
		zlog.Debug().Msgf("command: throttled reaction: emoji=%s user=%s", rc.Emoji, rc.UserID)
		return
	}

	emojis := r.cfg.Emojis
	switch rc.Emoji {
	case emojis.AddSong:
		if entry != nil {
			zlog.Debug().Msgf("command: reaction: adding media: ref=%s", entry.Reference)
			req := Request{
				GuildID:    rc.GuildID,
				ChannelID:  rc.ChannelID,
				Requester:  media.Requester{ID: rc.UserID},
				References: []string{entry.Reference},
			}
			if err := r.session.Request(ctx, req); err != nil {
				r.reportError(ctx, rc.ChannelID, err)
			}
		}
	case emojis.StopSong:
		zlog.Debug().Msg("command: reaction: stopping song")
		r.player.Stop()
	case emojis.PlaySong:
		zlog.Debug().Msg("command: reaction: playing/resuming song")
		r.player.Play()
	case emojis.PauseSong:
		zlog.Debug().Msg("command: reaction: pausing song")
		r.player.Pause()
	case emojis.SkipSong:
		zlog.Debug().Msg("command: reaction: skipping song")
		r.player.Skip(false)
	}

	if err := r.messages.RemoveReaction(ctx, rc.ChannelID, rc.MessageID, rc.Emoji, rc.UserID); err != nil {
		zlog.Debug().Msgf("command: failed to remove reaction: message=%s err=%v", rc.MessageID, err)
	}
}

// userLimiter throttles commands per user.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newUserLimiter(perSec float64, burst int) *userLimiter {
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	return &userLimiter{
		limit:    limit,
		burst:    max(burst, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *userLimiter) allow(user string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[user]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[user] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// sortedNames returns the primary names of cmds in alphabetical order.
func sortedNames(cmds []Command) []string {
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}
