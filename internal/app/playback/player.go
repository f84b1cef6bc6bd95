package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/osa030/rhythmbot/internal/app/notification"
	"github.com/osa030/rhythmbot/internal/app/queue"
	"github.com/osa030/rhythmbot/internal/app/status"
	"github.com/osa030/rhythmbot/internal/domain/media"
	zlog "github.com/rs/zerolog/log"
)

// DefaultDebounce is the delay between a finished stream and the next play.
const DefaultDebounce = time.Second

// Config holds player configuration.
type Config struct {
	Repeat    bool          // Re-enqueue finished entries at the tail
	Volume    int           // Initial volume on the 0..100 display scale
	Debounce  time.Duration // Delay before auto-advance, lets the transport release the previous stream
	Reactions []string      // Emoji attached to now playing notices
	Autofill  bool          // A listener refills the drained queue, so no empty queue notice is sent
}

// Settings is the runtime-mutable part of the configuration.
type Settings struct {
	Repeat bool
	Volume float64 // Gain multiplier passed to the transport
}

// Player owns the queue and the active stream. Every public operation and
// every stream event is handled to completion under one mutex.
//
// Stream acquisition runs on its own goroutine without the lock. Each
// acquisition gets a generation number; results and events carrying an old
// generation are discarded, so a stop or skip issued meanwhile always wins.
type Player struct {
	mu sync.Mutex

	queue *queue.Queue
	state State

	// stopping suppresses the auto-advance of the stream torn down by Stop.
	stopping    bool
	stoppingGen uint64

	gen       uint64
	acquiring bool
	stream    Stream
	streamGen uint64
	current   *media.Entry

	settings  Settings
	debounce  time.Duration
	reactions []string
	channel   string
	autofill  bool

	advanceTimer *time.Timer

	transport Transport
	notifier  Notifier
	publisher status.Publisher

	mailbox  *mailbox
	eventCh  chan Event
	bannerCh chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewPlayer creates a player and starts its event loop. q may be nil.
func NewPlayer(cfg Config, q *queue.Queue, transport Transport, notifier Notifier, publisher status.Publisher) *Player {
	if q == nil {
		q = queue.New()
	}
	if publisher == nil {
		publisher = status.Discard{}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		queue: q,
		state: StateIdle,
		settings: Settings{
			Repeat: cfg.Repeat,
			Volume: VolumeToMultiplier(cfg.Volume),
		},
		debounce:  debounce,
		reactions: append([]string(nil), cfg.Reactions...),
		autofill:  cfg.Autofill,
		transport: transport,
		notifier:  notifier,
		publisher: publisher,
		mailbox:   newMailbox(),
		eventCh:   make(chan Event, 32),
		bannerCh:  make(chan string, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	p.wg.Add(2)
	go p.loop()
	go p.publishLoop()

	p.mu.Lock()
	p.publishLocked()
	p.mu.Unlock()
	return p
}

// Events returns the event channel. It is closed by Close.
func (p *Player) Events() <-chan Event {
	return p.eventCh
}

// Play starts the head entry when idle, resumes when paused and does nothing
// when already playing.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playLocked()
}

// Pause suspends the active stream. It reports whether anything changed.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying {
		return false
	}
	p.stream.Pause()
	p.state = StatePaused
	zlog.Info().Msgf("player: paused: entry=%s", p.current.ID)
	p.infoLocked(fmt.Sprintf("⏸️ \"%s\" paused", p.current.DisplayName))
	p.sendEventLocked(EventStateChanged, p.current)
	p.publishLocked()
	return true
}

// Stop halts the active stream without advancing. It reports whether anything changed.
func (p *Player) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

// Skip drops the head and plays the next entry, if any. Unless silent, a notice names the skipped entry.
func (p *Player) Skip(silent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skipLocked(silent)
}

// Enqueue appends e and returns its 1-based position.
func (p *Player) Enqueue(e *media.Entry) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.queue.Enqueue(e)
	zlog.Debug().Msgf("player: enqueued: entry=%s name=%q position=%d", e.ID, e.DisplayName, pos)
	p.publishLocked()
	return pos
}

// Remove removes the entry at the 0-based index. Removing the entry being
// played stops playback first.
func (p *Player) Remove(index int) (*media.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.queue.At(index)
	if !ok {
		return nil, media.NewUserInputError("there is no track at position %d", index+1)
	}
	if index == 0 && p.busyLocked() {
		p.stopLocked()
	}
	p.queue.Remove(e)
	zlog.Info().Msgf("player: removed: entry=%s position=%d", e.ID, index+1)
	p.notifyLocked(notification.Info(p.channel, "Track Removed", e.DisplayName))
	p.publishLocked()
	return e, nil
}

// Clear stops playback and empties the queue. It returns the number of entries dropped.
func (p *Player) Clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelAdvanceLocked()
	if p.busyLocked() {
		p.stopLocked()
	}
	n := p.queue.Len()
	p.queue.Clear()
	zlog.Info().Msgf("player: queue cleared: dropped=%d", n)
	p.notifyLocked(notification.Info(p.channel, "Playlist Cleared", ""))
	p.publishLocked()
	return n
}

// Shuffle stops playback and shuffles the queue.
func (p *Player) Shuffle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busyLocked() {
		p.stopLocked()
	}
	p.queue.Shuffle()
	p.notifyLocked(notification.Info(p.channel, "🔀 Queue Shuffled", ""))
	p.publishLocked()
}

// Move moves the entry at cur to target (0-based, clamped). A move that
// changes the head stops playback first. It returns the moved entry and its
// new 0-based index, or false when nothing moved.
func (p *Player) Move(cur, target int) (*media.Entry, int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.queue.Len()
	if n == 0 {
		return nil, 0, false
	}
	cur = clampIndex(cur, n)
	target = clampIndex(target, n)
	if cur == target {
		return nil, 0, false
	}

	if (cur == 0 || target == 0) && p.busyLocked() {
		p.stopLocked()
	}
	e, _ := p.queue.At(cur)
	p.queue.Move(cur, target)
	zlog.Info().Msgf("player: moved: entry=%s from=%d to=%d", e.ID, cur+1, target+1)
	p.notifyLocked(notification.Info(p.channel, "Track Moved", fmt.Sprintf("\"%s\" moved to position %d", e.DisplayName, target+1)))
	p.publishLocked()
	return e, target, true
}

// SetVolume sets the volume from a 0..100 percentage (clamped), applies it to
// the active stream and returns the resulting display value.
func (p *Player) SetVolume(percent int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	mult := VolumeToMultiplier(percent)
	p.settings.Volume = mult
	if p.stream != nil {
		if err := p.stream.SetVolume(mult); err != nil {
			zlog.Warn().Msgf("player: failed to apply volume: multiplier=%.2f error=%v", mult, err)
		}
	}
	zlog.Info().Msgf("player: volume set: percent=%d multiplier=%.2f", ClampVolume(percent), mult)
	return FormatVolume(mult)
}

// Volume returns the current volume as a display percentage.
func (p *Player) Volume() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return FormatVolume(p.settings.Volume)
}

// ToggleRepeat flips repeat mode and returns the new value.
func (p *Player) ToggleRepeat() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.Repeat = !p.settings.Repeat
	return p.settings.Repeat
}

// Settings returns a copy of the runtime settings.
func (p *Player) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetChannel sets the destination of subsequent notices.
func (p *Player) SetChannel(channel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel = channel
}

// Channel returns the notice destination.
func (p *Player) Channel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel
}

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stopping reports whether a stopped stream has yet to report its terminal event.
func (p *Player) Stopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// Snapshot returns the banner-relevant state.
func (p *Player) Snapshot() status.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Len returns the queue length.
func (p *Player) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// Entries returns a copy of the queue.
func (p *Player) Entries() []*media.Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Entries()
}

// NowPlaying returns the entry being streamed and its elapsed time.
func (p *Player) NowPlaying() (*media.Entry, time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil, 0, false
	}
	return p.current, p.stream.Elapsed(), true
}

// Close destroys the active stream and stops the event loop.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelAdvanceLocked()
	p.haltLocked()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	close(p.eventCh)
}

func (p *Player) playLocked() {
	switch {
	case p.closed:
		return
	case p.state == StatePlaying:
		return
	case p.state == StatePaused:
		p.resumeLocked()
		return
	case p.acquiring:
		return
	}

	head, ok := p.queue.First()
	if !ok {
		p.infoLocked("Queue is empty! Add some songs!")
		return
	}
	p.startLocked(head)
}

func (p *Player) resumeLocked() {
	p.stream.Resume()
	p.state = StatePlaying
	zlog.Info().Msgf("player: resumed: entry=%s", p.current.ID)
	p.infoLocked(fmt.Sprintf("⏯️ \"%s\" resumed", p.current.DisplayName))
	p.sendEventLocked(EventStateChanged, p.current)
	p.publishLocked()
}

func (p *Player) stopLocked() bool {
	p.cancelAdvanceLocked()

	if p.acquiring {
		p.haltLocked()
		zlog.Info().Msg("player: stream acquisition abandoned")
		p.publishLocked()
		return true
	}
	if !p.state.Active() {
		return false
	}

	e := p.current
	p.stopping = true
	p.stoppingGen = p.streamGen
	p.haltLocked()
	zlog.Info().Msgf("player: stopped: entry=%s", e.ID)
	p.infoLocked(fmt.Sprintf("⏹️ \"%s\" stopped", e.DisplayName))
	p.sendEventLocked(EventStateChanged, e)
	p.publishLocked()
	return true
}

func (p *Player) skipLocked(silent bool) {
	p.cancelAdvanceLocked()

	skipped, ok := p.queue.Dequeue()
	p.haltLocked()
	if ok {
		zlog.Info().Msgf("player: skipped: entry=%s silent=%t", skipped.ID, silent)
		if !silent {
			p.infoLocked(fmt.Sprintf("⏭️ \"%s\" skipped", skipped.DisplayName))
		}
		p.sendEventLocked(EventTrackSkipped, skipped)
	}

	if next, ok := p.queue.First(); ok {
		p.startLocked(next)
	}
	p.publishLocked()
}

// startLocked acquires a stream for e in the background. The caller has
// already established that nothing is installed.
func (p *Player) startLocked(e *media.Entry) {
	p.cancelAdvanceLocked()
	p.gen++
	gen := p.gen
	p.acquiring = true
	opts := StreamOptions{Volume: p.settings.Volume}
	zlog.Info().Msgf("player: acquiring stream: entry=%s name=%q gen=%d", e.ID, e.DisplayName, gen)

	p.wg.Add(1)
	go p.acquire(gen, e, opts)
}

func (p *Player) acquire(gen uint64, e *media.Entry, opts StreamOptions) {
	defer p.wg.Done()

	stream, err := p.transport.Acquire(p.ctx, e, opts, func(ev StreamEvent) {
		p.mailbox.push(envelope{gen: gen, event: ev})
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.acquiring || gen != p.gen {
		if stream != nil {
			stream.Destroy()
		}
		zlog.Debug().Msgf("player: discarding stale stream: entry=%s gen=%d current=%d", e.ID, gen, p.gen)
		return
	}
	p.acquiring = false

	if err == nil {
		if err = stream.Start(); err != nil {
			stream.Destroy()
		}
	}
	if errors.Is(err, media.ErrVoiceJoin) {
		zlog.Warn().Msgf("player: cannot start without voice: entry=%s err=%v", e.ID, err)
		p.notifyLocked(notification.Error(p.channel, "I'm not on a voice channel!"))
		p.publishLocked()
		return
	}
	if err != nil {
		err = media.NewStreamAcquisitionError(e, err)
		zlog.Warn().Msgf("player: %v", err)
		p.notifyLocked(notification.Error(p.channel, fmt.Sprintf("Error Playing Song: %v", err)))
		p.skipLocked(false)
		return
	}

	p.stream = stream
	p.streamGen = gen
	p.current = e
	p.state = StatePlaying
	zlog.Info().Msgf("player: streaming: entry=%s gen=%d", e.ID, gen)
	p.sendEventLocked(EventStateChanged, e)
	p.publishLocked()
}

// haltLocked releases the active stream (or abandons an acquisition) and
// invalidates every event of the current generation.
func (p *Player) haltLocked() {
	p.gen++
	p.acquiring = false
	s := p.stream
	p.stream = nil
	p.current = nil
	p.state = StateIdle
	if s != nil {
		s.Destroy()
	}
}

func (p *Player) loop() {
	defer p.wg.Done()
	for !p.runLoop() {
		zlog.Warn().Msg("player: restarting event loop")
	}
}

// runLoop dispatches stream events until shutdown. It returns false after a recovered panic.
func (p *Player) runLoop() (done bool) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("player: panic in event loop: %v", r)
			done = false
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return true
		case <-p.mailbox.signal:
			for _, env := range p.mailbox.drain() {
				p.dispatch(env)
			}
		}
	}
}

// dispatch applies the transition for one stream event.
func (p *Player) dispatch(env envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	phase := p.phaseLocked(env.gen)
	t, ok := lookupTransition(phase, env.event.Kind)
	if !ok {
		zlog.Debug().Msgf("player: ignoring stream event: event=%s phase=%s gen=%d", env.event.Kind, phase, env.gen)
		return
	}
	zlog.Debug().Msgf("player: stream event: event=%s phase=%s action=%s next=%s", env.event.Kind, phase, t.action, t.next)

	if phase == p.state {
		p.state = t.next
	}

	switch t.action {
	case actionAnnounce:
		p.announceLocked()
	case actionRecover:
		p.recoverLocked(env.event.Detail)
	case actionAdvance:
		p.advanceLocked()
	case actionClearStopping:
		p.stopping = false
	}
}

// phaseLocked returns the state an event of generation gen is interpreted in.
func (p *Player) phaseLocked(gen uint64) State {
	if p.stopping && gen == p.stoppingGen {
		return StateStopping
	}
	if p.stream != nil && gen == p.streamGen {
		return p.state
	}
	return stateStale
}

func (p *Player) announceLocked() {
	e := p.current
	zlog.Info().Msgf("player: now playing: entry=%s name=%q", e.ID, e.DisplayName)
	p.notifyLocked(notification.Notice{
		Kind:      notification.KindNowPlaying,
		Channel:   p.channel,
		Title:     "▶️ Now playing",
		Body:      e.DisplayName,
		Entry:     e,
		Reactions: p.reactions,
	})
	p.sendEventLocked(EventNowPlaying, e)
}

func (p *Player) recoverLocked(detail error) {
	if detail == nil {
		detail = errors.New("stream reported an error")
	}
	err := media.NewTransportError(p.current, detail)
	zlog.Warn().Msgf("player: %v", err)
	p.notifyLocked(notification.Error(p.channel, fmt.Sprintf("Error Playing Song: %v", err)))
	p.skipLocked(false)
}

func (p *Player) advanceLocked() {
	finished := p.current
	p.haltLocked()

	if finished != nil {
		p.queue.Remove(finished)
		if p.settings.Repeat {
			p.queue.Enqueue(finished)
		}
		zlog.Info().Msgf("player: finished: entry=%s repeat=%t remaining=%d", finished.ID, p.settings.Repeat, p.queue.Len())
	}
	p.sendEventLocked(EventTrackEnded, finished)
	p.publishLocked()

	gen := p.gen
	p.advanceTimer = time.AfterFunc(p.debounce, func() {
		p.autoAdvance(gen)
	})
}

func (p *Player) autoAdvance(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || gen != p.gen {
		return
	}
	p.advanceTimer = nil
	if p.queue.Len() == 0 {
		zlog.Info().Msg("player: queue drained")
		p.sendEventLocked(EventQueueDrained, nil)
		if !p.autofill {
			p.infoLocked("Queue is empty! Add some songs!")
		}
		return
	}
	p.playLocked()
}

func (p *Player) cancelAdvanceLocked() {
	if p.advanceTimer != nil {
		p.advanceTimer.Stop()
		p.advanceTimer = nil
	}
}

// busyLocked reports whether a stream is installed or being acquired.
func (p *Player) busyLocked() bool {
	return p.acquiring || p.state.Active()
}

func (p *Player) snapshotLocked() status.Snapshot {
	first, _ := p.queue.First()
	second, _ := p.queue.At(1)
	return status.Snapshot{
		Playing: p.state.Active(),
		Paused:  p.state == StatePaused,
		Length:  p.queue.Len(),
		First:   first,
		Second:  second,
	}
}

func (p *Player) infoLocked(body string) {
	p.notifyLocked(notification.Info(p.channel, "", body))
}

func (p *Player) notifyLocked(n notification.Notice) {
	if p.notifier == nil {
		return
	}
	p.notifier.Notify(p.ctx, n)
}

func (p *Player) sendEventLocked(t EventType, e *media.Entry) {
	if p.closed {
		return
	}
	select {
	case p.eventCh <- Event{Type: t, Entry: e, State: p.state, At: time.Now()}:
	case <-p.ctx.Done():
	default:
		zlog.Warn().Msgf("player: event channel full, dropping event: type=%s", t)
	}
}

// publishLocked hands the current banner to the publish loop, replacing any
// banner not yet published.
func (p *Player) publishLocked() {
	banner := status.Project(p.snapshotLocked())
	select {
	case <-p.bannerCh:
	default:
	}
	p.bannerCh <- banner
}

func (p *Player) publishLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case banner := <-p.bannerCh:
			if err := p.publisher.Publish(p.ctx, banner); err != nil {
				zlog.Warn().Msgf("player: failed to publish banner: %v", err)
			}
		}
	}
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}
