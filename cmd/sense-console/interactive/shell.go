// Package interactive provides the interactive command line of
// sense-console.
package interactive

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/frame"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/result"
)

// Target is a command manager that can list its commands. Both
// *engine.Engine and *remote.Client qualify.
type Target interface {
	command.Manager
	Commands() []string
}

// Options configures a Shell.
type Options struct {
	// Snapshot is the local engine's frame, nil when the target is remote.
	Snapshot *frame.Snapshot

	// Events holds recent protocol events for the log command. May be nil.
	Events *log.MemoryLogger

	// Timeout is the default wait for immediate calls.
	Timeout time.Duration
}

// pendingInfo is what the shell remembers about a DELAY call.
type pendingInfo struct {
	name string
	desc command.Descriptor
}

// Shell executes console lines against a proxy. It is independent of the
// terminal so it can be driven by tests.
type Shell struct {
	ctx     context.Context
	proxy   *command.Proxy
	target  Target
	opts    Options
	tracker frame.Tracker
	pending map[command.CallID]pendingInfo
	out     io.Writer
}

// NewShell binds proxy to target and returns a shell writing to out.
func NewShell(ctx context.Context, proxy *command.Proxy, target Target, out io.Writer, opts Options) (*Shell, error) {
	if err := proxy.Bind(target); err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	return &Shell{
		ctx:     ctx,
		proxy:   proxy,
		target:  target,
		opts:    opts,
		pending: make(map[command.CallID]pendingInfo),
		out:     out,
	}, nil
}

// SetOutput redirects shell output.
func (s *Shell) SetOutput(w io.Writer) { s.out = w }

// Exec runs one input line. It returns false when the shell should exit.
func (s *Shell) Exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "commands", "ls":
		s.cmdCommands()
	case "meta", "m":
		err = s.cmdMeta(args)
	case "call", "c":
		err = s.cmdCall(args)
	case "wait", "w":
		err = s.cmdWait(args)
	case "try", "t":
		err = s.cmdTry(args)
	case "pending", "p":
		s.cmdPending()
	case "frame", "f":
		err = s.cmdFrame()
	case "log":
		err = s.cmdLog(args)
	case "status":
		s.cmdStatus()
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		s.printError(err)
	}
	return true
}

func (s *Shell) printError(err error) {
	if k := result.KindOf(err); k != result.KindNone {
		fmt.Fprintf(s.out, "Error [%s]: %v\n", k, err)
		return
	}
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Console Commands:
  Commands:
    commands                      - List registered commands and signatures
    meta <cmd> [param|return]     - Show a command's attribute store
    call [-policy p] [-timeout d] <cmd> [args...]
                                  - Invoke a command (policy: immediate, delay, drop)

  Delayed calls:
    pending                       - List calls awaiting retrieval
    wait <id> [timeout]           - Wait for a value (ms, duration or forever)
    try <id>                      - Retrieve a value without blocking

  Engine:
    frame                         - Show the current frame snapshot
    log [n]                       - Show the last n call events
    status                        - Show binding state

  General:
    help                          - Show this help
    quit                          - Exit console

  Arguments are YAML values: 3, -1.5, "text", [1, 2]. Enum parameters
  also accept entry names.`)
}

func (s *Shell) cmdCommands() {
	names := s.target.Commands()
	if len(names) == 0 {
		fmt.Fprintln(s.out, "No commands registered")
		return
	}
	for _, name := range names {
		d, err := s.proxy.Lookup(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(s.out, "  %-16s %s\n", name, d)
	}
}

func (s *Shell) cmdMeta(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: meta <cmd> [param-index|return]")
	}
	store, err := s.proxy.MetaInfo(args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		fmt.Fprintf(s.out, "%s\n", store)
		for i := range store.Params() {
			fmt.Fprintf(s.out, "  param %d %q\n", i, store.ParamName(i))
		}
		return nil
	}

	var sub *attribute.Store
	if args[1] == "return" {
		sub, err = store.Return()
	} else {
		i, perr := strconv.Atoi(args[1])
		if perr != nil {
			return fmt.Errorf("invalid parameter index: %s", args[1])
		}
		sub, err = store.Param(i)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s\n", sub)
	return nil
}

func (s *Shell) cmdCall(args []string) error {
	opts, err := parseCallArgs(args, s.opts.Timeout)
	if err != nil {
		return err
	}
	desc, err := s.proxy.Lookup(opts.Name)
	if err != nil {
		return err
	}
	meta, err := s.proxy.MetaInfo(opts.Name)
	if err != nil {
		return err
	}
	params, err := parseArgs(desc, meta, opts.Args)
	if err != nil {
		return err
	}

	void := desc.Return.IsVoid()
	drop := opts.Policy == command.Drop || void
	id, err := s.proxy.SendCommand(opts.Name, params, desc, drop)
	if err != nil {
		return err
	}

	switch {
	case void:
		fmt.Fprintf(s.out, "#%d sent (no return value)\n", id)
	case drop:
		fmt.Fprintf(s.out, "#%d sent, return value dropped\n", id)
	case opts.Policy == command.Delay:
		s.pending[id] = pendingInfo{name: opts.Name, desc: desc}
		fmt.Fprintf(s.out, "#%d pending\n", id)
	default:
		s.pending[id] = pendingInfo{name: opts.Name, desc: desc}
		return s.wait(id, opts.Timeout)
	}
	return nil
}

func (s *Shell) cmdWait(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: wait <id> [timeout]")
	}
	id, err := parseCallID(args[0])
	if err != nil {
		return err
	}
	timeout := command.WaitForever
	if len(args) > 1 {
		if timeout, err = parseTimeout(args[1]); err != nil {
			return err
		}
	}
	return s.wait(id, timeout)
}

func (s *Shell) wait(id command.CallID, timeout time.Duration) error {
	v, err := s.proxy.WaitForReturnValue(s.ctx, id, timeout)
	s.forget(id, err)
	if err != nil {
		if result.KindOf(err) == result.KindTimeout {
			fmt.Fprintf(s.out, "#%d timed out, still pending\n", id)
		}
		return err
	}
	fmt.Fprintf(s.out, "#%d = %s\n", id, v)
	return nil
}

func (s *Shell) cmdTry(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: try <id>")
	}
	id, err := parseCallID(args[0])
	if err != nil {
		return err
	}
	v, err := s.proxy.TryGetReturnValue(id)
	s.forget(id, err)
	if err != nil {
		if result.KindOf(err) == result.KindNotReady {
			fmt.Fprintf(s.out, "#%d not ready\n", id)
			return nil
		}
		return err
	}
	fmt.Fprintf(s.out, "#%d = %s\n", id, v)
	return nil
}

// forget drops a call from the pending list once the proxy no longer holds
// it.
func (s *Shell) forget(id command.CallID, err error) {
	switch result.KindOf(err) {
	case result.KindTimeout, result.KindNotReady:
		return
	}
	delete(s.pending, id)
}

func (s *Shell) cmdPending() {
	if len(s.pending) == 0 {
		fmt.Fprintln(s.out, "No pending calls")
		return
	}
	ids := make([]command.CallID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		info := s.pending[id]
		state, err := s.proxy.State(id)
		if err != nil {
			fmt.Fprintf(s.out, "  #%-4d %-16s <%v>\n", id, info.name, err)
			continue
		}
		fmt.Fprintf(s.out, "  #%-4d %-16s %s\n", id, info.name, state)
	}
}

func (s *Shell) cmdFrame() error {
	snap := s.opts.Snapshot
	if snap == nil {
		return fmt.Errorf("frames are only available from a local engine")
	}
	snap.With(func(fs *frame.Snapshot) {
		fresh := s.tracker.Fresh(fs)
		mark := ""
		if !fresh {
			mark = " (unchanged)"
		}
		fmt.Fprintf(s.out, "Frame %d%s, %d/%d valid\n", fs.FrameID(), mark, fs.ValidCount(), fs.Len())
		for id, e := range fs.All() {
			if !e.Valid {
				fmt.Fprintf(s.out, "  [%d] %-12s <invalid>\n", id, e.Name)
				continue
			}
			fmt.Fprintf(s.out, "  [%d] %-12s %s\n", id, e.Name, summarize(e.Value.String()))
		}
	})
	return nil
}

// summarize shortens long value renderings such as images.
func summarize(s string) string {
	const limit = 72
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func (s *Shell) cmdLog(args []string) error {
	if s.opts.Events == nil {
		return fmt.Errorf("protocol capture is disabled")
	}
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		n = v
	}
	events := s.opts.Events.Commands("")
	if len(events) > n {
		events = events[len(events)-n:]
	}
	for _, ev := range events {
		line := fmt.Sprintf("  #%-4d %-12s %-9s", ev.CallID, ev.Name, ev.State)
		if ev.Kind != "" {
			line += " " + ev.Kind
		}
		if ev.Latency != nil {
			line += " " + ev.Latency.Round(time.Microsecond).String()
		}
		fmt.Fprintln(s.out, line)
	}
	return nil
}

func (s *Shell) cmdStatus() {
	if !s.proxy.Valid() {
		fmt.Fprintln(s.out, "Proxy: not bound to a live manager")
		return
	}
	fmt.Fprintf(s.out, "Proxy:    %s\n", s.proxy.SessionID())
	fmt.Fprintf(s.out, "Manager:  %s\n", s.proxy.ManagerID())
	fmt.Fprintf(s.out, "Commands: %d\n", len(s.target.Commands()))
	fmt.Fprintf(s.out, "Pending:  %d\n", s.proxy.Pending())
}
