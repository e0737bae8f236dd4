package commands

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/motionsense/sense-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Commands          map[string]*CommandStats
	Snapshots         int
	LastFrameID       uint64
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single session.
type SessionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	ManagerID  string
	RemoteAddr string
}

// CommandStats holds call statistics for one command name, counted from the
// invoking side so that an in-process engine does not count a call twice.
type CommandStats struct {
	Calls        int
	Returned     int
	Failed       int
	TotalLatency time.Duration
	MaxLatency   time.Duration
}

// AvgLatency returns the mean latency over returned calls.
func (c *CommandStats) AvgLatency() time.Duration {
	if c.Returned == 0 {
		return 0
	}
	return c.TotalLatency / time.Duration(c.Returned)
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Commands:          make(map[string]*CommandStats),
	}
}

// add folds one event into the statistics.
func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	if sess.ManagerID == "" {
		sess.ManagerID = event.ManagerID
	}
	if sess.RemoteAddr == "" {
		sess.RemoteAddr = event.RemoteAddr
	}

	if c := event.Command; c != nil && event.LocalRole == log.RoleClient {
		cs, ok := s.Commands[c.Name]
		if !ok {
			cs = &CommandStats{}
			s.Commands[c.Name] = cs
		}
		switch {
		case c.State == "SENT" || c.State == "DROPPED":
			cs.Calls++
		case c.Kind != "":
			cs.Failed++
		case c.State == "RETURNED" && c.Latency != nil:
			cs.Returned++
			cs.TotalLatency += *c.Latency
			cs.MaxLatency = max(cs.MaxLatency, *c.Latency)
		}
	}

	if event.Snapshot != nil {
		s.Snapshots++
		s.LastFrameID = max(s.LastFrameID, event.Snapshot.FrameID)
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	err = eachEvent(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	if err != nil {
		return err
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerCommand, log.LayerFrame} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	printSessions(w, stats.Sessions)

	if len(stats.Commands) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Commands:")
		names := make([]string, 0, len(stats.Commands))
		for name := range stats.Commands {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			cs := stats.Commands[name]
			fmt.Fprintf(w, "  %-16s calls=%d returned=%d failed=%d", name, cs.Calls, cs.Returned, cs.Failed)
			if cs.Returned > 0 {
				fmt.Fprintf(w, " avg=%s max=%s", formatDuration(cs.AvgLatency()), formatDuration(cs.MaxLatency))
			}
			fmt.Fprintln(w)
		}
	}

	if stats.Snapshots > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Snapshots: %d (last frame %d)\n", stats.Snapshots, stats.LastFrameID)
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

func printSessions(w io.Writer, sessions map[string]*SessionStats) {
	fmt.Fprintf(w, "Sessions: %d\n", len(sessions))
	if len(sessions) == 0 {
		return
	}

	type sessInfo struct {
		id    string
		stats *SessionStats
	}
	list := make([]sessInfo, 0, len(sessions))
	for id, ss := range sessions {
		list = append(list, sessInfo{id, ss})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].stats.FirstSeen.Before(list[j].stats.FirstSeen)
	})

	fmt.Fprintln(w)
	for _, s := range list {
		duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
		if s.stats.ManagerID != "" {
			fmt.Fprintf(w, "           Manager: %s\n", s.stats.ManagerID)
		}
		if s.stats.RemoteAddr != "" {
			fmt.Fprintf(w, "           Remote: %s\n", s.stats.RemoteAddr)
		}
	}
}
