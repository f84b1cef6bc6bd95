package media

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	entry := NewEntry("ref", "Song", "")
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "resolution", err: NewResolutionError("ref", cause), expected: ErrResolution},
		{name: "resolution without cause", err: NewResolutionError("ref", nil), expected: ErrResolution},
		{name: "stream acquisition", err: NewStreamAcquisitionError(entry, cause), expected: ErrStreamAcquisition},
		{name: "transport", err: NewTransportError(entry, cause), expected: ErrTransport},
		{name: "user input", err: NewUserInputError("index %d out of range", 9), expected: ErrUserInput},
		{name: "voice join", err: NewVoiceJoinError(cause), expected: ErrVoiceJoin},
		{name: "wrapped keeps class", err: errors.Wrap(NewUserInputError("bad"), "handler"), expected: ErrUserInput},
		{name: "unclassified", err: cause, expected: nil},
		{name: "nil", err: nil, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	entry := NewEntry("ref", "Song", "")

	assert.Contains(t, NewResolutionError("xyz", errors.New("404")).Error(), `cannot resolve "xyz"`)
	assert.Contains(t, NewStreamAcquisitionError(entry, errors.New("eof")).Error(), `cannot stream "Song"`)
	assert.Contains(t, NewTransportError(nil, errors.New("eof")).Error(), UnknownName)
	assert.Equal(t, "index 9 out of range", NewUserInputError("index %d out of range", 9).Error())
}
