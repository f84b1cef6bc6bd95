package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEntry(t *testing.T) {
	tests := []struct {
		name         string
		displayName  string
		expectedName string
	}{
		{
			name:         "keeps title",
			displayName:  "Song A",
			expectedName: "Song A",
		},
		{
			name:         "blank title uses placeholder",
			displayName:  "   ",
			expectedName: UnknownName,
		},
		{
			name:         "empty title uses placeholder",
			displayName:  "",
			expectedName: UnknownName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry("https://example.com/a", tt.displayName, "")
			assert.Equal(t, tt.expectedName, e.DisplayName)
			assert.Equal(t, "https://example.com/a", e.Reference)
			assert.NotEmpty(t, e.ID)
		})
	}
}

func TestNewEntry_DistinctIdentity(t *testing.T) {
	a := NewEntry("ref", "Same", "")
	b := NewEntry("ref", "Same", "")

	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{name: "zero", input: 0, expected: "00:00:00"},
		{name: "seconds", input: 42 * time.Second, expected: "00:00:42"},
		{name: "minutes", input: 3*time.Minute + 5*time.Second, expected: "00:03:05"},
		{name: "hours", input: 2*time.Hour + 1*time.Minute, expected: "02:01:00"},
		{name: "negative", input: -time.Second, expected: "00:00:00"},
		{name: "sub-second truncated", input: 1500 * time.Millisecond, expected: "00:00:01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.input))
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "", FormatSeconds(0))
	assert.Equal(t, "", FormatSeconds(-3))
	assert.Equal(t, "00:04:10", FormatSeconds(250))
}

func TestEntry_DurationOrUnknown(t *testing.T) {
	assert.Equal(t, "??:??:??", NewEntry("r", "n", "").DurationOrUnknown())
	assert.Equal(t, "00:01:00", NewEntry("r", "n", "00:01:00").DurationOrUnknown())
}
