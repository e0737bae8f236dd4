package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionsense/sense-go/pkg/log"
)

func TestStatsCounts(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []log.Event{
		{Timestamp: ts, SessionID: "session-aaaa", Layer: log.LayerTransport},
		{Timestamp: ts.Add(time.Second), SessionID: "session-aaaa", Layer: log.LayerWire, Direction: log.DirectionOut},
		{Timestamp: ts.Add(2 * time.Second), SessionID: "session-bbbb", Layer: log.LayerFrame, Category: log.CategoryState},
		{Timestamp: ts.Add(3 * time.Second), SessionID: "session-bbbb", Layer: log.LayerWire, Category: log.CategoryError,
			Error: &log.ErrorEventData{Message: "boom"}},
	})

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))

	out := buf.String()
	assert.Contains(t, out, "Total Events: 4")
	assert.Contains(t, out, "TRANSPORT:")
	assert.Contains(t, out, "FRAME:")
	assert.Contains(t, out, "STATE:")
	assert.Contains(t, out, "OUT:")
	assert.Contains(t, out, "Sessions: 2")
	assert.Contains(t, out, "[session-] 2 events")
	assert.Contains(t, out, "Duration:   3s")
	assert.Contains(t, out, "Errors: 1")
}

func TestStatsCommandLatency(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	fast, slow := 2*time.Millisecond, 6*time.Millisecond
	events := []log.Event{
		{Timestamp: ts, Command: &log.CommandEvent{CallID: 1, Name: "add", State: "SENT"}},
		{Timestamp: ts, Command: &log.CommandEvent{CallID: 2, Name: "add", State: "SENT"}},
		{Timestamp: ts, Command: &log.CommandEvent{CallID: 3, Name: "add", State: "SENT"}},
		{Timestamp: ts, Command: &log.CommandEvent{CallID: 1, Name: "add", State: "RETURNED", Latency: &fast}},
		{Timestamp: ts, Command: &log.CommandEvent{CallID: 2, Name: "add", State: "RETURNED", Latency: &slow}},
		{Timestamp: ts, Command: &log.CommandEvent{CallID: 3, Name: "add", State: "TIMED_OUT", Kind: "TIMEOUT", Latency: &slow}},
		// Engine-side records of the same calls are not counted again.
		{Timestamp: ts, LocalRole: log.RoleEngine, Command: &log.CommandEvent{CallID: 1, Name: "add", State: "RETURNED", Latency: &fast}},
		{Timestamp: ts, Snapshot: &log.SnapshotEvent{FrameID: 4}},
		{Timestamp: ts, Snapshot: &log.SnapshotEvent{FrameID: 9}},
	}
	path := createTestLogFile(t, events)

	stats := newStats()
	for _, e := range events {
		stats.add(e)
	}
	cs := stats.Commands["add"]
	require.NotNil(t, cs)
	assert.Equal(t, 3, cs.Calls)
	assert.Equal(t, 2, cs.Returned)
	assert.Equal(t, 1, cs.Failed)
	assert.Equal(t, 4*time.Millisecond, cs.AvgLatency())
	assert.Equal(t, slow, cs.MaxLatency)
	assert.Equal(t, uint64(9), stats.LastFrameID)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	out := buf.String()
	assert.Contains(t, out, "calls=3 returned=2 failed=1 avg=4.000ms max=6.000ms")
	assert.Contains(t, out, "Snapshots: 2 (last frame 9)")
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	require.NoError(t, RunStats(path, &buf))
	assert.Contains(t, buf.String(), "Total Events: 0")
	assert.Contains(t, buf.String(), "Sessions: 0")
}
