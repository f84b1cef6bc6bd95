package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

// Mock queue for testing
type mockQueue struct {
	entries []*media.Entry
}

func (m *mockQueue) Entries() []*media.Entry {
	return m.entries
}

func entry(ref, name, artist string) *media.Entry {
	e := media.NewEntry(ref, name, "")
	e.Artist = artist
	return e
}

func TestDuplicateEntryFilter_ExactReference(t *testing.T) {
	q := &mockQueue{entries: []*media.Entry{entry("https://youtu.be/a", "Bohemian Rhapsody", "Queen")}}
	filter := NewDuplicateEntryFilter(q)

	result := filter.Check(context.Background(), Request{Entry: entry("https://youtu.be/a", "Something Else", "")})

	assert.False(t, result.Accepted)
	assert.Equal(t, "duplicate_entry", result.Code)
	assert.Equal(t, "\"Something Else\" is already in the queue", result.Reason)
}

func TestDuplicateEntryFilter_SameSong(t *testing.T) {
	tests := []struct {
		name         string
		queued       *media.Entry
		requested    *media.Entry
		shouldReject bool
	}{
		{
			name:         "Standard remaster pattern",
			queued:       entry("a", "Bohemian Rhapsody", "Queen"),
			requested:    entry("b", "Bohemian Rhapsody - 2011 Remaster", "Queen"),
			shouldReject: true,
		},
		{
			name:         "Remastered in parentheses",
			queued:       entry("a", "Hey Jude", "The Beatles"),
			requested:    entry("b", "Hey Jude (Remastered 2015)", "the beatles"),
			shouldReject: true,
		},
		{
			name:         "Official video upload",
			queued:       entry("a", "Take On Me", "a-ha"),
			requested:    entry("b", "Take On Me (Official Video)", "a-ha"),
			shouldReject: true,
		},
		{
			name:         "Radio edit",
			queued:       entry("a", "Sandstorm", "Darude"),
			requested:    entry("b", "Sandstorm (Radio Edit)", "Darude"),
			shouldReject: true,
		},
		{
			name:         "Cover by another artist",
			queued:       entry("a", "Hallelujah", "Leonard Cohen"),
			requested:    entry("b", "Hallelujah", "Jeff Buckley"),
			shouldReject: false,
		},
		{
			name:         "Unknown artist is never a duplicate by title",
			queued:       entry("a", "Intro", ""),
			requested:    entry("b", "Intro", ""),
			shouldReject: false,
		},
		{
			name:         "Different song",
			queued:       entry("a", "Alive", "Pearl Jam"),
			requested:    entry("b", "Black", "Pearl Jam"),
			shouldReject: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := NewDuplicateEntryFilter(&mockQueue{entries: []*media.Entry{tt.queued}})
			result := filter.Check(context.Background(), Request{Entry: tt.requested})
			assert.Equal(t, !tt.shouldReject, result.Accepted)
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Let It Be [Remastered]", "let it be"},
		{"Song  Name   (Single Version)", "song name"},
		{"Track [Lyrics]", "track"},
		{"Alive", "alive"},
		{"Song (Live)", "song"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeTitle(tt.input))
		})
	}
}

func TestDuplicateEntryFilter_EmptyQueue(t *testing.T) {
	filter := NewDuplicateEntryFilter(&mockQueue{})
	result := filter.Check(context.Background(), Request{Entry: entry("a", "Song", "Artist")})
	assert.True(t, result.Accepted)
	assert.True(t, filter.AppliesTo(OriginAutofill))
}
