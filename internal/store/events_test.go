package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
)

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := OpenEventStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(id string, disaster bool, prob float64, at time.Time) domain.ClassificationEvent {
	return domain.ClassificationEvent{
		ID:                  id,
		CleanedTweet:        "cleaned " + id,
		IsRealDisaster:      disaster,
		DisasterProbability: prob,
		EvaluatedAt:         at,
	}
}

func TestEventStore_InsertAndQuery(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, event("a", true, 0.91, base)))
	require.NoError(t, s.Insert(ctx, event("b", false, 0.12, base.Add(time.Hour))))
	require.NoError(t, s.Insert(ctx, event("c", true, 0.67, base.Add(2*time.Hour))))

	got, err := s.Between(ctx, base, base.Add(2*time.Hour), 0)
	require.NoError(t, err)

	// Newest first, round-tripped intact.
	want := []domain.ClassificationEvent{
		event("c", true, 0.67, base.Add(2*time.Hour)),
		event("b", false, 0.12, base.Add(time.Hour)),
		event("a", true, 0.91, base),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestEventStore_RangeIsInclusive(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, event("before", false, 0.1, base.Add(-time.Second))))
	require.NoError(t, s.Insert(ctx, event("start", false, 0.2, base)))
	require.NoError(t, s.Insert(ctx, event("end", false, 0.3, base.Add(time.Hour))))
	require.NoError(t, s.Insert(ctx, event("after", false, 0.4, base.Add(time.Hour+time.Second))))

	got, err := s.Between(ctx, base, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "end", got[0].ID)
	assert.Equal(t, "start", got[1].ID)
}

func TestEventStore_SubsecondOrdering(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, event("whole", false, 0.5, base)))
	require.NoError(t, s.Insert(ctx, event("half", false, 0.5, base.Add(500*time.Millisecond))))

	got, err := s.Between(ctx, base, base.Add(time.Second), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "half", got[0].ID)
	assert.Equal(t, "whole", got[1].ID)
}

func TestEventStore_LimitClamp(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(ctx, event(fmt.Sprintf("e%d", i), false, 0.5, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.Between(ctx, base, base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e4", got[0].ID)

	// Zero and negative fall back to the default limit.
	got, err = s.Between(ctx, base, base.Add(time.Hour), -1)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestEventStore_DuplicateIDRejected(t *testing.T) {
	s := newTestEventStore(t)
	ctx := context.Background()

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, event("dup", true, 0.9, at)))
	assert.Error(t, s.Insert(ctx, event("dup", false, 0.1, at)))
}

func TestOpenEventStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	s, err := OpenEventStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Insert(context.Background(), event("x", true, 0.8, time.Now().UTC())))
}
