package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/wire"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	r, err := log.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	events, err := r.All()
	require.NoError(t, err)
	return events
}

func TestFilterBySessionID(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, SessionID: "aaa"},
		{Timestamp: ts, SessionID: "bbb"},
		{Timestamp: ts, SessionID: "aaa"},
	})
	out := filepath.Join(t.TempDir(), "out.slog")

	n, err := RunFilter(path, FilterOptions{Output: out, SessionID: "aaa"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, e := range readAll(t, out) {
		assert.Equal(t, "aaa", e.SessionID)
	}
}

func TestFilterByCommand(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, Layer: log.LayerCommand, Command: &log.CommandEvent{CallID: 1, Name: "add", State: "SENT"}},
		{Timestamp: ts, Layer: log.LayerWire, Message: &log.MessageEvent{Type: wire.MsgInvoke, CallID: 1, Command: "add"}},
		{Timestamp: ts, Layer: log.LayerCommand, Command: &log.CommandEvent{CallID: 2, Name: "scale", State: "SENT"}},
		{Timestamp: ts, Layer: log.LayerFrame, Snapshot: &log.SnapshotEvent{FrameID: 1}},
	})
	out := filepath.Join(t.TempDir(), "out.slog")

	n, err := RunFilter(path, FilterOptions{Output: out, Command: "add", Layer: "command"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events := readAll(t, out)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Command)
	assert.Equal(t, uint64(1), events[0].Command.CallID)
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: base.Add(-time.Hour)},
		{Timestamp: base},
		{Timestamp: base.Add(30 * time.Minute)},
		{Timestamp: base.Add(time.Hour)},
	})
	out := filepath.Join(t.TempDir(), "out.slog")

	n, err := RunFilter(path, FilterOptions{
		Output:    out,
		TimeStart: base.Format(time.RFC3339),
		TimeEnd:   base.Add(time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFilterRejectsBadOptions(t *testing.T) {
	path := createTestLogFile(t, nil)
	out := filepath.Join(t.TempDir(), "out.slog")

	_, err := RunFilter(path, FilterOptions{Output: out, TimeStart: "yesterday"})
	assert.ErrorContains(t, err, "invalid time-start")

	_, err = RunFilter(path, FilterOptions{Output: out, Direction: "up"})
	assert.ErrorContains(t, err, "invalid direction")
}
