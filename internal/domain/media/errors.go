package media

import (
	"github.com/cockroachdb/errors"
)

// Error classes. Every failure surfaced to users is marked with exactly one of these.
var (
	// ErrResolution marks an unresolvable reference. The entry is never enqueued.
	ErrResolution = errors.New("resolution failed")
	// ErrStreamAcquisition marks a source failure after enqueue. The entry is skipped.
	ErrStreamAcquisition = errors.New("stream acquisition failed")
	// ErrTransport marks a mid-playback failure. The entry is skipped.
	ErrTransport = errors.New("transport failed")
	// ErrUserInput marks bad command input. No state changes.
	ErrUserInput = errors.New("invalid input")
	// ErrVoiceJoin marks a voice connection failure. Playback stays idle.
	ErrVoiceJoin = errors.New("voice join failed")
)

// NewResolutionError wraps cause as a resolution failure for reference.
func NewResolutionError(reference string, cause error) error {
	if cause == nil {
		cause = errors.New("no playable media found")
	}
	return errors.Mark(errors.Wrapf(cause, "cannot resolve %q", reference), ErrResolution)
}

// NewStreamAcquisitionError wraps cause as a stream acquisition failure for e.
func NewStreamAcquisitionError(e *Entry, cause error) error {
	return errors.Mark(errors.Wrapf(cause, "cannot stream %q", nameOf(e)), ErrStreamAcquisition)
}

// NewTransportError wraps cause as a playback failure for e.
func NewTransportError(e *Entry, cause error) error {
	return errors.Mark(errors.Wrapf(cause, "playback of %q failed", nameOf(e)), ErrTransport)
}

// NewUserInputError creates an input error with a user facing message.
func NewUserInputError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrUserInput)
}

// NewVoiceJoinError wraps cause as a voice join failure.
func NewVoiceJoinError(cause error) error {
	return errors.Mark(errors.Wrap(cause, "cannot join voice channel"), ErrVoiceJoin)
}

// Classify returns the class an error was marked with, or nil.
func Classify(err error) error {
	for _, class := range []error{ErrUserInput, ErrResolution, ErrStreamAcquisition, ErrTransport, ErrVoiceJoin} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

func nameOf(e *Entry) string {
	if e == nil {
		return UnknownName
	}
	return e.DisplayName
}
