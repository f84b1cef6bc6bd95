// Package session provides the session manager.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/app/autofill"
	"github.com/osa030/rhythmbot/internal/app/command"
	"github.com/osa030/rhythmbot/internal/app/filter"
	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/app/playback"
	"github.com/osa030/rhythmbot/internal/app/resolver"
	"github.com/osa030/rhythmbot/internal/app/session/history"
	"github.com/osa030/rhythmbot/internal/app/session/state"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

// ErrSessionClosed is returned for requests after Close.
var ErrSessionClosed = errors.New("session is closed")

// maxListed bounds the entries named in a "Tracks Added" notice.
const maxListed = 10

// Player is the playback engine driven by the session.
type Player interface {
	Events() <-chan playback.Event
	Enqueue(e *media.Entry) int
	Play()
	Pause() bool
	Stop() bool
	State() playback.State
	Entries() []*media.Entry
	Channel() string
	Close()
}

// Resolver turns references into entries.
type Resolver interface {
	Resolve(ctx context.Context, reference string, emit resolver.EmitFunc) error
}

// Candidates proposes entries for a drained queue.
type Candidates interface {
	GetCandidates(ctx context.Context, count int, seeds []autofill.Seed, exclude map[string]bool) ([]autofill.CandidateWithSource, error)
}

// Voice is the voice connection of the bot.
type Voice interface {
	JoinMember(ctx context.Context, guildID, userID string) error
	Leave(ctx context.Context) bool
}

// Config represents session behaviour.
type Config struct {
	AutoPlay       bool   // Start playback after a request when idle
	Announce       bool   // Send "Track Added" notices
	AddSongEmoji   string // Reaction attached to "Track Added" notices
	CandidateCount int    // Autofill candidates requested per attempt
	SeedCount      int    // Recently played entries passed to autofill as seeds
	HistorySize    int
}

// Deps are the collaborators of the session.
type Deps struct {
	Player   Player
	Resolver Resolver
	Filters  *filter.Chain // Optional
	Autofill Candidates    // Optional; the queue is not refilled without it
	Voice    Voice
	Notifier playback.Notifier
}

// Manager is the single playback session of the bot. It implements command.Session.
type Manager struct {
	config Config

	player   Player
	resolver Resolver
	filters  *filter.Chain
	autofill Candidates
	voice    Voice
	notifier playback.Notifier

	stateMgr *state.Manager
	history  *history.History

	fillMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a session manager and starts its playback loop.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.CandidateCount <= 0 {
		cfg.CandidateCount = 3
	}
	if cfg.SeedCount <= 0 {
		cfg.SeedCount = 3
	}
	filters := deps.Filters
	if filters == nil {
		filters = filter.NewChain()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:   cfg,
		player:   deps.Player,
		resolver: deps.Resolver,
		filters:  filters,
		autofill: deps.Autofill,
		voice:    deps.Voice,
		notifier: deps.Notifier,
		stateMgr: state.New(),
		history:  history.New(cfg.HistorySize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(m.done)
		m.runPlaybackLoop()
	}()
	return m
}

// Request resolves and enqueues the references of req. Each reference is
// resolved in order; entries are enqueued as soon as they resolve. A
// reference that fails to resolve is reported and the rest are still
// processed. Only a voice join failure aborts the request.
func (m *Manager) Request(ctx context.Context, req command.Request) error {
	if !m.stateMgr.CanAcceptRequests() {
		return ErrSessionClosed
	}

	if req.Join {
		if err := m.voice.JoinMember(ctx, req.GuildID, req.Requester.ID); err != nil {
			return err
		}
		m.stateMgr.Connect(req.GuildID)
	}
	autoPlay := req.Join && m.config.AutoPlay

	if len(req.References) == 0 {
		if req.Join {
			m.player.Play()
		}
		return nil
	}

	for _, ref := range req.References {
		added, err := m.resolveAndEnqueue(ctx, req, ref, autoPlay)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if err != nil {
			zlog.Info().Msgf("session: request failed: ref=%q user=%s err=%v", ref, req.Requester.ID, err)
			m.notify(ctx, notification.Error(req.ChannelID, err.Error()))
		}
		m.announce(ctx, req.ChannelID, added)
	}
	return nil
}

// queuedEntry is an entry together with its 1-based queue position.
type queuedEntry struct {
	entry    *media.Entry
	position int
}

func (m *Manager) resolveAndEnqueue(ctx context.Context, req command.Request, ref string, autoPlay bool) ([]queuedEntry, error) {
	var added []queuedEntry
	err := m.resolver.Resolve(ctx, ref, func(e *media.Entry) error {
		e.WithRequester(req.Requester)
		result := m.filters.Execute(ctx, filter.Request{Entry: e, Requester: req.Requester}, filter.OriginUser)
		zlog.Info().Msgf("session: request: user=%s entry=%q result=%t code=%s", req.Requester.ID, e.DisplayName, result.Accepted, result.Code)
		if !result.Accepted {
			reason := result.Reason
			if reason == "" {
				reason = fmt.Sprintf("\"%s\" was rejected (%s)", e.DisplayName, result.Code)
			}
			m.notify(ctx, notification.Error(req.ChannelID, reason))
			return nil
		}

		pos := m.player.Enqueue(e)
		added = append(added, queuedEntry{entry: e, position: pos})

		if autoPlay && m.player.State() == playback.StateIdle {
			m.player.Play()
		}
		return nil
	})
	return added, err
}

func (m *Manager) announce(ctx context.Context, channel string, added []queuedEntry) {
	if !m.config.Announce || len(added) == 0 {
		return
	}

	if len(added) == 1 {
		qe := added[0]
		n := notification.Notice{
			Kind:     notification.KindTrackAdded,
			Channel:  channel,
			Title:    "Track Added",
			Entry:    qe.entry,
			Position: qe.position,
			Fields: []notification.Field{
				{Name: "Title:", Value: qe.entry.DisplayName},
				{Name: "Position:", Value: fmt.Sprint(qe.position), Inline: true},
			},
		}
		if m.config.AddSongEmoji != "" {
			n.Reactions = []string{m.config.AddSongEmoji}
		}
		m.notify(ctx, n)
		return
	}

	lines := make([]string, 0, maxListed+1)
	for i, qe := range added {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("...and %d more", len(added)-maxListed))
			break
		}
		lines = append(lines, fmt.Sprintf("%d. Title: \"%s\"", qe.position, qe.entry.DisplayName))
	}
	m.notify(ctx, notification.Notice{
		Kind:    notification.KindTracksAdded,
		Channel: channel,
		Title:   fmt.Sprintf("%d Tracks Added", len(added)),
		Body:    strings.Join(lines, "\n\n"),
	})
}

// Leave stops playback and leaves the voice channel. It reports whether a
// voice connection was closed.
func (m *Manager) Leave(ctx context.Context) bool {
	m.player.Stop()
	m.stateMgr.Disconnect()
	return m.voice.Leave(ctx)
}

// OnAlone pauses playback when nobody else is listening and resumes it when
// someone comes back, unless it was paused by a user.
func (m *Manager) OnAlone(alone bool) {
	if alone {
		if m.player.Pause() {
			m.stateMgr.SetPauseCause(state.PauseAlone)
			zlog.Info().Msg("session: paused, nobody is listening")
		}
		return
	}
	if m.stateMgr.TakePauseCause() == state.PauseAlone && m.player.State() == playback.StatePaused {
		zlog.Info().Msg("session: resuming, listeners are back")
		m.player.Play()
	}
}

// OnDisconnected stops playback after the voice connection was lost for good.
func (m *Manager) OnDisconnected() {
	m.player.Stop()
	if m.stateMgr.Disconnect() {
		m.notify(m.ctx, notification.Info(m.player.Channel(), "Disconnected", "Disconnected from the voice channel"))
	}
}

// Phase returns the lifecycle phase of the session.
func (m *Manager) Phase() state.Phase {
	return m.stateMgr.GetPhase()
}

// History returns the recently played entries, newest first.
func (m *Manager) History() []*media.Entry {
	return m.history.All()
}

func (m *Manager) runPlaybackLoop() {
	for !m.playbackLoop() {
		zlog.Info().Msg("session: restarting playback loop")
	}
}

// playbackLoop handles player events until the session or the player is
// closed. It returns false after recovering from a panic.
func (m *Manager) playbackLoop() (finished bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: %v", r)
			finished = m.ctx.Err() != nil
		}
	}()

	events := m.player.Events()
	for {
		select {
		case <-m.ctx.Done():
			return true
		case event, ok := <-events:
			if !ok {
				return true
			}
			m.handlePlaybackEvent(event)
		}
	}
}

// handlePlaybackEvent handles playback events.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("session: playback event: type=%s state=%s", event.Type, event.State)

	switch event.Type {
	case playback.EventNowPlaying:
		m.history.Record(event.Entry)

	case playback.EventQueueDrained:
		m.onQueueDrained()
	}
}

func (m *Manager) onQueueDrained() {
	if m.autofill == nil || !m.stateMgr.IsConnected() {
		return
	}
	m.fillQueue()
}

// fillQueue adds one autofill entry to an empty queue and plays it.
func (m *Manager) fillQueue() {
	m.fillMu.Lock()
	defer m.fillMu.Unlock()

	const maxRetries = 3

	known := make(map[string]bool)
	for _, e := range m.player.Entries() {
		known[autofill.SeedFromEntry(e).Key()] = true
	}
	var seeds []autofill.Seed
	for i, e := range m.history.All() {
		s := autofill.SeedFromEntry(e)
		known[s.Key()] = true
		if i < m.config.SeedCount {
			seeds = append(seeds, s)
		}
	}
	exclude := make(map[string]bool, len(known))
	for k := range known {
		exclude[k] = true
	}

	for retry := 0; retry < maxRetries; retry++ {
		candidates, err := m.autofill.GetCandidates(m.ctx, m.config.CandidateCount, seeds, exclude)
		if err != nil {
			zlog.Error().Msgf("session: failed to get autofill candidates: %v", err)
			return
		}
		if len(candidates) == 0 {
			zlog.Warn().Msg("session: no autofill candidates")
			return
		}

		for _, c := range candidates {
			if len(m.player.Entries()) > 0 {
				zlog.Info().Msg("session: skipping autofill: queue is no longer empty")
				return
			}
			if !m.stateMgr.IsConnected() {
				zlog.Debug().Msg("session: skipping autofill: voice disconnected")
				return
			}
			exclude[c.Candidate.Key()] = true

			e, err := m.resolveFirst(c.Candidate.Reference)
			if err != nil {
				zlog.Debug().Msgf("session: autofill candidate unresolvable: ref=%q err=%v", c.Candidate.Reference, err)
				continue
			}
			if known[autofill.SeedFromEntry(e).Key()] {
				zlog.Debug().Msgf("session: autofill candidate played recently: name=%q", e.DisplayName)
				continue
			}

			requester := media.Requester{Name: c.DisplayName}
			e.WithRequester(requester)
			result := m.filters.Execute(m.ctx, filter.Request{Entry: e, Requester: requester}, filter.OriginAutofill)
			if !result.Accepted {
				zlog.Debug().Msgf("session: autofill candidate rejected by filter: name=%q code=%s", e.DisplayName, result.Code)
				continue
			}

			m.player.Enqueue(e)
			zlog.Info().Msgf("session: added autofill entry: name=%q source=%s", e.DisplayName, c.DisplayName)
			m.player.Play()
			return
		}

		zlog.Debug().Msgf("session: all autofill candidates filtered out, retrying: retry=%d/%d excluded_count=%d", retry+1, maxRetries, len(exclude))
	}

	zlog.Warn().Msg("session: no suitable autofill candidates after filtering")
}

// errFirstResolved stops resolution after the first entry.
var errFirstResolved = errors.New("first entry resolved")

func (m *Manager) resolveFirst(ref string) (*media.Entry, error) {
	var first *media.Entry
	err := m.resolver.Resolve(m.ctx, ref, func(e *media.Entry) error {
		first = e
		return errFirstResolved
	})
	if first != nil {
		return first, nil
	}
	if err == nil {
		err = media.NewResolutionError(ref, nil)
	}
	return nil, err
}

func (m *Manager) notify(ctx context.Context, n notification.Notice) {
	if m.notifier != nil {
		m.notifier.Notify(ctx, n)
	}
}

// Close stops the playback loop and the player. Later requests fail.
func (m *Manager) Close() {
	m.stateMgr.Close()
	m.cancel()
	m.player.Close()
	<-m.done
}
