package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/rhythmbot/internal/app/autofill"
	"github.com/osa030/rhythmbot/internal/app/command"
	"github.com/osa030/rhythmbot/internal/app/filter"
	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/app/playback"
	"github.com/osa030/rhythmbot/internal/app/resolver"
	"github.com/osa030/rhythmbot/internal/app/session/state"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

type fakePlayer struct {
	mu      sync.Mutex
	events  chan playback.Event
	entries []*media.Entry
	state   playback.State
	plays   int
	stops   int
	closed  bool
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan playback.Event, 8)}
}

func (p *fakePlayer) Events() <-chan playback.Event { return p.events }

func (p *fakePlayer) Enqueue(e *media.Entry) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
	return len(p.entries)
}

func (p *fakePlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays++
	if len(p.entries) > 0 {
		p.state = playback.StatePlaying
	}
}

func (p *fakePlayer) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != playback.StatePlaying {
		return false
	}
	p.state = playback.StatePaused
	return true
}

func (p *fakePlayer) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	active := p.state.Active()
	p.state = playback.StateIdle
	return active
}

func (p *fakePlayer) State() playback.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePlayer) Entries() []*media.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*media.Entry(nil), p.entries...)
}

func (p *fakePlayer) Channel() string { return "text" }

func (p *fakePlayer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

func (p *fakePlayer) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.state = playback.StateIdle
}

type fakeResolver struct {
	entries map[string][]*media.Entry
	errs    map[string]error
}

func (r *fakeResolver) Resolve(_ context.Context, ref string, emit resolver.EmitFunc) error {
	if err, ok := r.errs[ref]; ok {
		return err
	}
	for _, e := range r.entries[ref] {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

type fakeVoice struct {
	joinErr error
	joined  []string
	left    bool
}

func (v *fakeVoice) JoinMember(_ context.Context, guildID, userID string) error {
	if v.joinErr != nil {
		return v.joinErr
	}
	v.joined = append(v.joined, guildID+"/"+userID)
	return nil
}

func (v *fakeVoice) Leave(context.Context) bool {
	v.left = true
	return true
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notification.Notice
}

func (n *fakeNotifier) Notify(_ context.Context, notice notification.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNotifier) ofKind(kind notification.Kind) []notification.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.Notice
	for _, notice := range n.notices {
		if notice.Kind == kind {
			out = append(out, notice)
		}
	}
	return out
}

type fakeCandidates struct {
	mu         sync.Mutex
	candidates []autofill.CandidateWithSource
	seeds      [][]autofill.Seed
}

func (c *fakeCandidates) GetCandidates(_ context.Context, _ int, seeds []autofill.Seed, exclude map[string]bool) ([]autofill.CandidateWithSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeds = append(c.seeds, seeds)
	var out []autofill.CandidateWithSource
	for _, cand := range c.candidates {
		if !exclude[cand.Candidate.Key()] {
			out = append(out, cand)
		}
	}
	return out, nil
}

type rejectFilter struct {
	reference string
}

func (f rejectFilter) Name() string                        { return "reject" }
func (f rejectFilter) Description() string                 { return "rejects one reference" }
func (f rejectFilter) ReturnCodes() []string               { return []string{"rejected"} }
func (f rejectFilter) ValidateConfig(map[string]any) error { return nil }
func (f rejectFilter) AppliesTo(filter.Origin) bool        { return true }

func (f rejectFilter) Check(_ context.Context, req filter.Request) filter.Result {
	if req.Entry.Reference == f.reference {
		return filter.Reject("rejected", "Not this one")
	}
	return filter.Accept()
}

type fixture struct {
	mgr       *Manager
	player    *fakePlayer
	resolver  *fakeResolver
	voice     *fakeVoice
	notifier  *fakeNotifier
	autofill  *fakeCandidates
	filters   *filter.Chain
	requester media.Requester
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		player:    newFakePlayer(),
		resolver:  &fakeResolver{entries: map[string][]*media.Entry{}, errs: map[string]error{}},
		voice:     &fakeVoice{},
		notifier:  &fakeNotifier{},
		autofill:  &fakeCandidates{},
		filters:   filter.NewChain(),
		requester: media.Requester{ID: "42", Name: "alice"},
	}
	f.mgr = NewManager(cfg, Deps{
		Player:   f.player,
		Resolver: f.resolver,
		Filters:  f.filters,
		Autofill: f.autofill,
		Voice:    f.voice,
		Notifier: f.notifier,
	})
	t.Cleanup(f.mgr.Close)
	return f
}

func (f *fixture) request(join bool, refs ...string) error {
	return f.mgr.Request(context.Background(), command.Request{
		GuildID:    "1",
		ChannelID:  "text",
		Requester:  f.requester,
		References: refs,
		Join:       join,
	})
}

func entry(name string) *media.Entry {
	return media.NewEntry("https://youtu.be/"+name, name, "00:03:00")
}

func TestRequest_EnqueuesAndPlays(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true, Announce: true, AddSongEmoji: "👍"})
	a := entry("a")
	f.resolver.entries["a"] = []*media.Entry{a}

	require.NoError(t, f.request(true, "a"))

	assert.Equal(t, []string{"1/42"}, f.voice.joined)
	assert.Equal(t, state.PhaseConnected, f.mgr.Phase())
	assert.Equal(t, []*media.Entry{a}, f.player.Entries())
	assert.Equal(t, f.requester, a.Requester)
	assert.Equal(t, 1, f.player.playCount())

	added := f.notifier.ofKind(notification.KindTrackAdded)
	require.Len(t, added, 1)
	assert.Equal(t, "Track Added", added[0].Title)
	assert.Same(t, a, added[0].Entry)
	assert.Equal(t, 1, added[0].Position)
	assert.Equal(t, []string{"👍"}, added[0].Reactions)
}

func TestRequest_PlaylistIsAnnouncedOnce(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true, Announce: true})
	f.resolver.entries["list"] = []*media.Entry{entry("a"), entry("b"), entry("c")}

	require.NoError(t, f.request(true, "list"))

	assert.Len(t, f.player.Entries(), 3)
	assert.Equal(t, 1, f.player.playCount(), "playback starts with the first resolved entry")
	added := f.notifier.ofKind(notification.KindTracksAdded)
	require.Len(t, added, 1)
	assert.Equal(t, "3 Tracks Added", added[0].Title)
	assert.Equal(t, "1. Title: \"a\"\n\n2. Title: \"b\"\n\n3. Title: \"c\"", added[0].Body)
}

func TestRequest_FailuresDoNotAbortOtherReferences(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true})
	f.resolver.errs["bad"] = media.NewResolutionError("bad", nil)
	f.resolver.entries["good"] = []*media.Entry{entry("good")}
	f.resolver.entries["blocked"] = []*media.Entry{entry("blocked")}
	f.filters.Add(rejectFilter{reference: "https://youtu.be/blocked"})

	require.NoError(t, f.request(true, "bad", "blocked", "good"))

	entries := f.player.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].DisplayName)

	errs := f.notifier.ofKind(notification.KindError)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Body, "bad")
	assert.Equal(t, "Not this one", errs[1].Body)
	assert.Empty(t, f.notifier.ofKind(notification.KindTrackAdded), "announcements are off")
}

func TestRequest_JoinFailure(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true})
	f.voice.joinErr = media.NewVoiceJoinError(errors.New("User isn't on a voice channel!"))
	f.resolver.entries["a"] = []*media.Entry{entry("a")}

	err := f.request(true, "a")
	assert.True(t, errors.Is(err, media.ErrVoiceJoin))
	assert.Empty(t, f.player.Entries())
	assert.Equal(t, state.PhaseIdle, f.mgr.Phase())
}

func TestRequest_WithoutJoinOnlyEnqueues(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true})
	f.resolver.entries["a"] = []*media.Entry{entry("a")}

	require.NoError(t, f.request(false, "a"))
	assert.Empty(t, f.voice.joined)
	assert.Len(t, f.player.Entries(), 1)
	assert.Zero(t, f.player.playCount())
}

func TestRequest_NoReferencesPlays(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true})
	require.NoError(t, f.request(true))
	assert.Equal(t, 1, f.player.playCount())
}

func TestRequest_AfterClose(t *testing.T) {
	f := newFixture(t, Config{})
	f.mgr.Close()
	assert.ErrorIs(t, f.request(true, "a"), ErrSessionClosed)
}

func TestLeave(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.request(true))

	assert.True(t, f.mgr.Leave(context.Background()))
	assert.True(t, f.voice.left)
	assert.Equal(t, state.PhaseIdle, f.mgr.Phase())
	assert.Equal(t, 1, f.player.stops)
}

func TestOnAlone(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true})
	f.resolver.entries["a"] = []*media.Entry{entry("a")}
	require.NoError(t, f.request(true, "a"))
	require.Equal(t, playback.StatePlaying, f.player.State())

	f.mgr.OnAlone(true)
	assert.Equal(t, playback.StatePaused, f.player.State())
	f.mgr.OnAlone(false)
	assert.Equal(t, playback.StatePlaying, f.player.State())

	// A user pause is not undone by listeners coming back.
	f.player.Pause()
	f.mgr.OnAlone(true)
	f.mgr.OnAlone(false)
	assert.Equal(t, playback.StatePaused, f.player.State())
}

func TestOnDisconnected(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.request(true))

	f.mgr.OnDisconnected()
	assert.Equal(t, state.PhaseIdle, f.mgr.Phase())
	info := f.notifier.ofKind(notification.KindInfo)
	require.Len(t, info, 1)
	assert.Equal(t, "text", info[0].Channel)
}

func TestAutofill_RefillsDrainedQueue(t *testing.T) {
	f := newFixture(t, Config{AutoPlay: true, SeedCount: 2})
	played := media.NewEntry("https://youtu.be/p", "Artist - Played", "")
	fresh := media.NewEntry("https://youtu.be/f", "Artist - Fresh", "")
	f.resolver.entries["played"] = []*media.Entry{played}
	f.resolver.entries["Artist - Played"] = []*media.Entry{media.NewEntry("https://youtu.be/p2", "Artist - Played (Live)", "")}
	f.resolver.entries["Artist - Fresh"] = []*media.Entry{fresh}
	f.autofill.candidates = []autofill.CandidateWithSource{
		{Candidate: autofill.Candidate{Reference: "Artist - Played"}, DisplayName: "Last.fm"},
		{Candidate: autofill.Candidate{Reference: "Artist - Fresh"}, DisplayName: "Last.fm"},
	}

	require.NoError(t, f.request(true, "played"))
	f.player.events <- playback.Event{Type: playback.EventNowPlaying, Entry: played}
	require.Eventually(t, func() bool { return len(f.mgr.History()) == 1 }, time.Second, 5*time.Millisecond)

	f.player.drain()
	f.player.events <- playback.Event{Type: playback.EventQueueDrained}

	require.Eventually(t, func() bool { return len(f.player.Entries()) == 1 }, time.Second, 5*time.Millisecond)
	got := f.player.Entries()[0]
	assert.Same(t, fresh, got)
	assert.Equal(t, "Last.fm", got.Requester.Name)
	assert.Equal(t, 2, f.player.playCount())

	f.autofill.mu.Lock()
	defer f.autofill.mu.Unlock()
	require.NotEmpty(t, f.autofill.seeds)
	assert.Equal(t, []autofill.Seed{{Artist: "Artist", Title: "Played"}}, f.autofill.seeds[0])
}

func TestAutofill_NotWhenDisconnected(t *testing.T) {
	f := newFixture(t, Config{})
	f.resolver.entries["x"] = []*media.Entry{entry("x")}
	f.autofill.candidates = []autofill.CandidateWithSource{{Candidate: autofill.Candidate{Reference: "x"}}}

	f.player.events <- playback.Event{Type: playback.EventQueueDrained}
	f.player.events <- playback.Event{Type: playback.EventStateChanged}

	assert.Never(t, func() bool { return len(f.player.Entries()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
