// Package audio streams entries to a voice connection as opus frames encoded by ffmpeg through dca.
package audio

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo/voice"
	"github.com/jonas747/dca"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rhythmbot/internal/app/playback"
	"github.com/osa030/rhythmbot/internal/domain/media"
)

const (
	frameDuration = 20 * time.Millisecond

	defaultBitrate = 64  // kbps, used when the channel bitrate is unknown
	maxBitrate     = 512 // kbps accepted by the encoder
	unityVolume    = 256 // encoder volume for a multiplier of 1.0
	fecPacketLoss  = 10  // packet loss hint applied when forward error correction is requested
)

// ErrNotConnected is returned when a stream is acquired without a voice connection.
// It is marked with media.ErrVoiceJoin.
var ErrNotConnected = errors.Mark(errors.New("not connected to a voice channel"), media.ErrVoiceJoin)

// Encoder is the part of a dca encode session a stream reads from.
type Encoder interface {
	OpusFrame() ([]byte, error)
	Cleanup()
}

// EncodeFunc starts encoding source.
type EncodeFunc func(source string, opts *dca.EncodeOptions) (Encoder, error)

// Voice is the voice connection streams play into.
type Voice interface {
	Connected() bool
	// SetFrameProvider installs p as the audio source. nil detaches the current one.
	SetFrameProvider(p voice.OpusFrameProvider)
	SetSpeaking(ctx context.Context, speaking bool) error
	// Bitrate returns the channel bitrate in kbps, 0 when unknown.
	Bitrate() int
}

// Locator maps an entry reference to a URL ffmpeg can read.
type Locator interface {
	StreamURL(ctx context.Context, reference string) (string, error)
}

// Config represents encoding options shared by every stream.
type Config struct {
	Bitrate                int           // kbps, 0 selects the channel bitrate
	PacketLossPercentage   int           // Expected packet loss hint for the encoder
	ForwardErrorCorrection bool          // Raises the packet loss hint to fecPacketLoss
	Seek                   time.Duration // Skipped at the start of every entry
}

// Transport acquires dca streams for entries. It implements playback.Transport.
type Transport struct {
	cfg     Config
	locator Locator
	voice   Voice
	encode  EncodeFunc
}

// NewTransport creates a transport playing into v.
func NewTransport(cfg Config, locator Locator, v Voice) *Transport {
	return &Transport{
		cfg:     cfg,
		locator: locator,
		voice:   v,
		encode:  encodeFile,
	}
}

func encodeFile(source string, opts *dca.EncodeOptions) (Encoder, error) {
	sess, err := dca.EncodeFile(source, opts)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Acquire looks up the audio URL of entry and starts encoding it. The
// returned stream is silent until Start.
func (t *Transport) Acquire(ctx context.Context, entry *media.Entry, opts playback.StreamOptions, listener playback.Listener) (playback.Stream, error) {
	if !t.voice.Connected() {
		return nil, ErrNotConnected
	}

	source, err := t.locator.StreamURL(ctx, entry.Reference)
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate audio")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &stream{
		entry:    entry,
		source:   source,
		voice:    t.voice,
		encode:   t.encode,
		options:  t.options,
		listener: listener,
		volume:   opts.Volume,
	}
	if err := s.open(t.cfg.Seek); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("audio: encoding started: entry=%s volume=%.2f", entry.ID, opts.Volume)
	return s, nil
}

// options builds encoder options for a session starting at offset with the given gain.
func (t *Transport) options(offset time.Duration, multiplier float64) *dca.EncodeOptions {
	opts := *dca.StdEncodeOptions
	opts.RawOutput = true
	opts.Application = dca.AudioApplicationAudio
	opts.FrameDuration = int(frameDuration / time.Millisecond)
	opts.Volume = encoderVolume(multiplier)
	opts.Bitrate = t.bitrate()
	opts.PacketLoss = t.packetLoss()
	opts.StartTime = int(offset / time.Second)
	opts.BufferedFrames = 100
	opts.VBR = true
	return &opts
}

func (t *Transport) bitrate() int {
	if t.cfg.Bitrate > 0 {
		return min(t.cfg.Bitrate, maxBitrate)
	}
	if b := t.voice.Bitrate(); b > 0 {
		return min(b, maxBitrate)
	}
	return defaultBitrate
}

func (t *Transport) packetLoss() int {
	pl := max(0, min(t.cfg.PacketLossPercentage, 100))
	if t.cfg.ForwardErrorCorrection {
		pl = max(pl, fecPacketLoss)
	}
	return pl
}

func encoderVolume(multiplier float64) int {
	if multiplier < 0 {
		multiplier = 0
	}
	return int(math.Round(multiplier * unityVolume))
}
