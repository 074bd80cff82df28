package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestRecordAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Service: "api", Type: EventStart, PID: 100, OccurredAt: base},
		{Service: "api", Type: EventStop, PID: 100, OccurredAt: base.Add(time.Minute), Detail: "requested"},
		{Service: "bui", Type: EventStart, PID: 200, OccurredAt: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		require.NoError(t, db.Record(ctx, e))
	}

	got, err := db.Recent(ctx, "api", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// newest first
	require.Equal(t, EventStop, got[0].Type)
	require.Equal(t, "requested", got[0].Detail)
	require.Equal(t, EventStart, got[1].Type)
	require.Empty(t, got[1].Detail)

	got, err = db.Recent(ctx, "bui", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 200, got[0].PID)
}

func TestRecentLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Record(ctx, Event{Service: "api", Type: EventStart, PID: 100 + i}))
	}

	got, err := db.Recent(ctx, "api", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 104, got[0].PID)
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Record(ctx, Event{Service: "api", Type: EventStart, PID: 1}))
	got, err := db.Recent(ctx, "api", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].OccurredAt.IsZero())
}

func TestRecentUnknownService(t *testing.T) {
	db := openTestDB(t)
	got, err := db.Recent(context.Background(), "nope", 10)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
