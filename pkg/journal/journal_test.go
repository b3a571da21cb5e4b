package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"useruploadagent/pkg/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecentForTicket(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, j.Record(ctx, model.ProcessingResult{
		TicketKey: "TICK-1",
		Status:    model.ResultSuccess,
		NextState: model.StatusDone,
		Message:   "created 2 users",
	}, now))

	require.NoError(t, j.Record(ctx, model.ProcessingResult{
		TicketKey: "TICK-1",
		Status:    model.ResultPartial,
		NextState: model.StatusInfoRequired,
		Message:   "1 failure",
		Failures:  []model.CreationFailure{{Email: "x@y.io", Reason: "role not found"}},
	}, now.Add(time.Hour)))

	entries, err := j.RecentForTicket(ctx, "TICK-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	require.Equal(t, string(model.ResultPartial), entries[0].Status)
	require.Equal(t, 1, entries[0].Failures)
	require.Equal(t, string(model.ResultSuccess), entries[1].Status)
}

func TestRecentForTicketIsolatesByKey(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, j.Record(ctx, model.ProcessingResult{TicketKey: "TICK-1", Status: model.ResultSuccess, NextState: model.StatusDone}, now))
	require.NoError(t, j.Record(ctx, model.ProcessingResult{TicketKey: "TICK-2", Status: model.ResultSuccess, NextState: model.StatusDone}, now))

	entries, err := j.RecentForTicket(ctx, "TICK-2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "TICK-2", entries[0].TicketKey)
}

func TestRecentForTicketRespectsLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, model.ProcessingResult{TicketKey: "TICK-1", Status: model.ResultSuccess, NextState: model.StatusDone}, now.Add(time.Duration(i)*time.Minute)))
	}

	entries, err := j.RecentForTicket(ctx, "TICK-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
