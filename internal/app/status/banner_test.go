package status

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/osa030/rhythmbot/internal/domain/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject(t *testing.T) {
	a := media.NewEntry("ref-a", "A", "")
	b := media.NewEntry("ref-b", "B", "")

	tests := []struct {
		name     string
		snapshot Snapshot
		expected string
	}{
		{
			name:     "empty queue",
			snapshot: Snapshot{},
			expected: "No Songs In Queue",
		},
		{
			name:     "empty queue while flagged playing",
			snapshot: Snapshot{Playing: true, Paused: true},
			expected: "No Songs In Queue",
		},
		{
			name:     "not playing",
			snapshot: Snapshot{Length: 1, First: a},
			expected: `Up Next: "A"`,
		},
		{
			name:     "not playing ignores second",
			snapshot: Snapshot{Length: 2, First: a, Second: b},
			expected: `Up Next: "A"`,
		},
		{
			name:     "paused",
			snapshot: Snapshot{Playing: true, Paused: true, Length: 2, First: a, Second: b},
			expected: `Paused: "A"`,
		},
		{
			name:     "playing with next",
			snapshot: Snapshot{Playing: true, Length: 2, First: a, Second: b},
			expected: `Now Playing: "A", Up Next "B"`,
		},
		{
			name:     "playing alone",
			snapshot: Snapshot{Playing: true, Length: 1, First: a},
			expected: `Now Playing: "A"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Project(tt.snapshot))
		})
	}
}

type countingPublisher struct {
	banners []string
	err     error
}

func (p *countingPublisher) Publish(_ context.Context, banner string) error {
	if p.err != nil {
		return p.err
	}
	p.banners = append(p.banners, banner)
	return nil
}

func TestDedup(t *testing.T) {
	ctx := context.Background()
	inner := &countingPublisher{}
	d := NewDedup(inner)

	require.NoError(t, d.Publish(ctx, EmptyBanner))
	require.NoError(t, d.Publish(ctx, EmptyBanner))
	require.NoError(t, d.Publish(ctx, `Up Next: "A"`))
	require.NoError(t, d.Publish(ctx, EmptyBanner))

	assert.Equal(t, []string{EmptyBanner, `Up Next: "A"`, EmptyBanner}, inner.banners)
}

func TestDedup_RetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	inner := &countingPublisher{err: errors.New("gateway closed")}
	d := NewDedup(inner)

	assert.Error(t, d.Publish(ctx, EmptyBanner))

	inner.err = nil
	require.NoError(t, d.Publish(ctx, EmptyBanner))
	assert.Equal(t, []string{EmptyBanner}, inner.banners)
}
