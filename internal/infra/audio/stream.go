package audio

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonas747/dca"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/app/playback"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

// OpusSilence is sent while a stream is paused or waiting for the encoder.
var OpusSilence = []byte{0xf8, 0xff, 0xfe}

// frameWait bounds how long a frame request waits for the encoder before
// answering with silence. It must stay within one frame of the send loop.
var frameWait = frameDuration

type streamState int

const (
	stateCreated streamState = iota
	stateRunning
	stateEnded
)

// encodeSession is one encoder run. A volume change replaces it with a new
// run starting at the current position.
type encodeSession struct {
	enc    Encoder
	frames chan []byte
	stop   chan struct{}
	base   time.Duration // Source position of the first frame
	played atomic.Int64  // Frames handed to the voice connection
	err    error         // Set before frames is closed
	once   sync.Once
}

func (es *encodeSession) pump() {
	defer close(es.frames)
	for {
		f, err := es.enc.OpusFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				es.err = err
			}
			return
		}
		select {
		case es.frames <- f:
		case <-es.stop:
			return
		}
	}
}

func (es *encodeSession) close() {
	es.once.Do(func() {
		close(es.stop)
		es.enc.Cleanup()
	})
}

func (es *encodeSession) elapsed() time.Duration {
	return es.base + time.Duration(es.played.Load())*frameDuration
}

// stream is a playback.Stream that serves its frames to the voice
// connection as a voice.OpusFrameProvider.
type stream struct {
	entry    *media.Entry
	source   string
	voice    Voice
	encode   EncodeFunc
	options  func(offset time.Duration, multiplier float64) *dca.EncodeOptions
	listener playback.Listener

	mu       sync.Mutex
	cur      *encodeSession
	state    streamState
	paused   bool
	reported bool // StreamStart sent
	volume   float64
}

// open starts a new encode session at offset and makes it current.
func (s *stream) open(offset time.Duration) error {
	enc, err := s.encode(s.source, s.options(offset, s.volume))
	if err != nil {
		return errors.Wrap(err, "failed to start encoder")
	}
	es := &encodeSession{
		enc:    enc,
		frames: make(chan []byte, 100),
		stop:   make(chan struct{}),
		base:   offset.Truncate(time.Second),
	}
	go es.pump()
	s.cur = es
	return nil
}

func (s *stream) Start() error {
	s.mu.Lock()
	if s.state != stateCreated {
		s.mu.Unlock()
		return errors.New("audio: stream already started")
	}
	s.state = stateRunning
	s.mu.Unlock()

	s.voice.SetFrameProvider(s)
	if err := s.voice.SetSpeaking(context.Background(), true); err != nil {
		zlog.Warn().Msgf("audio: failed to set speaking: entry=%s err=%v", s.entry.ID, err)
	}
	return nil
}

func (s *stream) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *stream) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// SetVolume restarts encoding at the current position with the new gain.
// The previous session keeps playing if the restart fails.
func (s *stream) SetVolume(multiplier float64) error {
	s.mu.Lock()
	if s.state == stateEnded {
		s.mu.Unlock()
		return nil
	}
	prev, prevVolume := s.cur, s.volume
	s.volume = multiplier
	if err := s.open(prev.elapsed()); err != nil {
		s.volume = prevVolume
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	prev.close()
	zlog.Debug().Msgf("audio: volume changed: entry=%s volume=%.2f position=%s", s.entry.ID, multiplier, prev.elapsed())
	return nil
}

func (s *stream) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.elapsed()
}

// Destroy stops encoding and detaches from the voice connection. A started
// stream that has not ended reports StreamClose.
func (s *stream) Destroy() {
	s.mu.Lock()
	state := s.state
	s.state = stateEnded
	cur := s.cur
	s.mu.Unlock()

	cur.close()
	if state == stateCreated {
		return
	}
	s.detach()
	if state == stateRunning {
		s.listener(playback.StreamEvent{Kind: playback.StreamClose})
	}
}

func (s *stream) detach() {
	s.voice.SetFrameProvider(nil)
	if err := s.voice.SetSpeaking(context.Background(), false); err != nil {
		zlog.Debug().Msgf("audio: failed to clear speaking: entry=%s err=%v", s.entry.ID, err)
	}
}

// ProvideOpusFrame returns the next frame of the current session, or
// silence while paused or while the encoder lags behind.
func (s *stream) ProvideOpusFrame() ([]byte, error) {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil, io.EOF
	}
	if s.paused {
		s.mu.Unlock()
		return OpusSilence, nil
	}
	cur := s.cur
	s.mu.Unlock()

	select {
	case f, ok := <-cur.frames:
		if !ok {
			return s.end(cur)
		}
		cur.played.Add(1)
		s.delivered()
		return f, nil
	case <-time.After(frameWait):
		return OpusSilence, nil
	}
}

// delivered reports StreamStart for the first frame.
func (s *stream) delivered() {
	s.mu.Lock()
	first := !s.reported && s.state == stateRunning
	s.reported = true
	s.mu.Unlock()
	if first {
		s.listener(playback.StreamEvent{Kind: playback.StreamStart})
	}
}

// end reports the terminal event once cur has run dry. A session replaced
// by a volume change ends silently.
func (s *stream) end(cur *encodeSession) ([]byte, error) {
	s.mu.Lock()
	if cur != s.cur {
		s.mu.Unlock()
		return OpusSilence, nil
	}
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil, io.EOF
	}
	s.state = stateEnded
	s.mu.Unlock()

	if cur.err != nil {
		zlog.Warn().Msgf("audio: encoder failed: entry=%s err=%v", s.entry.ID, cur.err)
		s.listener(playback.StreamEvent{Kind: playback.StreamError, Detail: cur.err})
		s.listener(playback.StreamEvent{Kind: playback.StreamClose})
	} else {
		zlog.Debug().Msgf("audio: stream finished: entry=%s elapsed=%s", s.entry.ID, cur.elapsed())
		s.listener(playback.StreamEvent{Kind: playback.StreamFinish})
	}
	go cur.close()
	return nil, io.EOF
}

// Close is called by the voice connection when it drops the provider.
func (s *stream) Close() {}
