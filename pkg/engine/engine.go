package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/frame"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/value"
)

// Handler executes one command. params match the registered descriptor in
// count and type. The returned value must carry the registered return type;
// handlers of void commands return value.TypedValue{}.
type Handler func(ctx context.Context, params []value.TypedValue) (value.TypedValue, error)

// Config configures an Engine.
type Config struct {
	// Logger receives operational log lines. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives command and snapshot events.
	ProtocolLogger log.Logger

	// MaxConcurrent bounds the number of handlers running at once.
	// Zero means no bound.
	MaxConcurrent int

	// Frame is the layout of the published snapshot.
	Frame []frame.Item
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Logger:        slog.Default(),
		MaxConcurrent: 16,
	}
}

// Change describes a registry update.
type Change struct {
	Name       string
	Descriptor command.Descriptor
	Removed    bool
}

type entry struct {
	desc command.Descriptor
	meta *attribute.Store
	fn   Handler
}

// Engine runs registered command handlers and publishes frames.
type Engine struct {
	id   uuid.UUID
	live atomic.Bool

	mu       sync.RWMutex
	commands map[string]*entry
	watchers map[int]func(Change)
	nextW    int

	snap *frame.Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    chan struct{}

	logger   *slog.Logger
	protoLog log.Logger
}

var _ command.Manager = (*Engine)(nil)

// New creates a live engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	snap, err := frame.New(cfg.Frame...)
	if err != nil {
		return nil, fmt.Errorf("frame layout: %w", err)
	}

	e := &Engine{
		id:       uuid.New(),
		commands: make(map[string]*entry),
		watchers: make(map[int]func(Change)),
		snap:     snap,
		logger:   cfg.Logger,
		protoLog: log.OrNoop(cfg.ProtocolLogger),
	}
	if cfg.MaxConcurrent > 0 {
		e.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.live.Store(true)
	e.logState("", "OPEN", "")
	return e, nil
}

// ID returns the engine's instance id.
func (e *Engine) ID() uuid.UUID { return e.id }

// Live reports whether the engine has not been closed.
func (e *Engine) Live() bool { return e.live.Load() }

// Done is closed when the engine closes.
func (e *Engine) Done() <-chan struct{} { return e.ctx.Done() }

// Close stops accepting invocations, cancels running handlers and waits for
// them to return.
func (e *Engine) Close() error {
	e.mu.Lock()
	wasLive := e.live.Swap(false)
	e.mu.Unlock()
	if !wasLive {
		return nil
	}
	e.cancel()
	e.wg.Wait()
	e.logState("OPEN", "CLOSED", "")
	e.logger.Debug("engine closed", "engine", e.id)
	return nil
}

// Register adds or replaces the command name. meta must be a function
// signature store with one parameter slot per descriptor parameter; nil
// yields plain stores named p0, p1, ...
func (e *Engine) Register(name string, desc command.Descriptor, meta *attribute.Store, fn Handler) error {
	if name == "" {
		return fmt.Errorf("empty command name")
	}
	if fn == nil {
		return fmt.Errorf("command %q: nil handler", name)
	}
	for i, p := range desc.Params {
		if p.IsUnknown() || p.IsVoid() {
			return result.New(result.KindSignatureMismatch, "command %q: parameter %d has no type", name, i)
		}
	}
	if desc.Return.IsUnknown() {
		return result.New(result.KindSignatureMismatch, "command %q: return has no type", name)
	}

	if meta == nil {
		var err error
		if meta, err = defaultMeta(desc); err != nil {
			return fmt.Errorf("command %q: %w", name, err)
		}
	} else {
		if meta.Class() != attribute.ClassFunctionSignature {
			return fmt.Errorf("command %q: meta info is %s, want %s", name, meta.Class(), attribute.ClassFunctionSignature)
		}
		if meta.Params() != desc.Arity() {
			return result.New(result.KindSignatureMismatch, "command %q: meta info has %d parameters, descriptor %d", name, meta.Params(), desc.Arity())
		}
		meta = meta.Clone()
	}

	desc = command.NewDescriptor(desc.Return, desc.Params...)
	e.mu.Lock()
	e.commands[name] = &entry{desc: desc, meta: meta, fn: fn}
	e.mu.Unlock()

	e.logger.Debug("command registered", "engine", e.id, "command", name, "signature", desc.String())
	e.notify(Change{Name: name, Descriptor: desc})
	return nil
}

// Unregister removes the command name. Invocations already dispatched keep
// running.
func (e *Engine) Unregister(name string) bool {
	e.mu.Lock()
	ent, ok := e.commands[name]
	delete(e.commands, name)
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.logger.Debug("command unregistered", "engine", e.id, "command", name)
	e.notify(Change{Name: name, Descriptor: ent.desc, Removed: true})
	return true
}

// Commands returns the registered command names in sorted order.
func (e *Engine) Commands() []string {
	e.mu.RLock()
	names := make([]string, 0, len(e.commands))
	for n := range e.commands {
		names = append(names, n)
	}
	e.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Descriptor returns the registered signature of name.
func (e *Engine) Descriptor(name string) (command.Descriptor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.commands[name]
	if !ok {
		return command.Descriptor{}, false
	}
	return command.NewDescriptor(ent.desc.Return, ent.desc.Params...), true
}

// MetaInfo returns a copy of the signature store of name.
func (e *Engine) MetaInfo(name string) (*attribute.Store, error) {
	if !e.Live() {
		return nil, result.New(result.KindInvalidHandle, "engine %s is closed", e.id)
	}
	e.mu.RLock()
	ent, ok := e.commands[name]
	e.mu.RUnlock()
	if !ok {
		return nil, result.New(result.KindNameNotFound, "command %q is not registered", name)
	}
	return ent.meta.Clone(), nil
}

// Watch calls fn for every registry change until the returned function is
// called. fn must not block.
func (e *Engine) Watch(fn func(Change)) (cancel func()) {
	e.mu.Lock()
	id := e.nextW
	e.nextW++
	e.watchers[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.watchers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) notify(c Change) {
	e.mu.RLock()
	fns := make([]func(Change), 0, len(e.watchers))
	for _, fn := range e.watchers {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
	state := "ADDED"
	if c.Removed {
		state = "REMOVED"
	}
	e.logState("", state, c.Name)
}

// Dispatch validates inv and runs its handler on a new goroutine.
func (e *Engine) Dispatch(inv *command.Invocation) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.Live() {
		return result.New(result.KindInvalidHandle, "engine %s is closed", e.id)
	}
	ent, ok := e.commands[inv.Name]
	if !ok {
		return result.New(result.KindNameNotFound, "command %q is not registered", inv.Name)
	}
	if len(inv.Params) != ent.desc.Arity() {
		return result.New(result.KindSignatureMismatch, "%s: %d parameters, want %d", inv.Name, len(inv.Params), ent.desc.Arity())
	}
	params := make([]value.TypedValue, len(inv.Params))
	for i, p := range inv.Params {
		if p.Type() != ent.desc.Params[i] {
			return result.New(result.KindSignatureMismatch, "%s: parameter %d is %s, want %s", inv.Name, i, p.Type(), ent.desc.Params[i])
		}
		params[i] = p.Clone()
	}

	e.wg.Add(1)
	go e.run(inv, ent, params)
	return nil
}

func (e *Engine) run(inv *command.Invocation, ent *entry, params []value.TypedValue) {
	defer e.wg.Done()

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-e.ctx.Done():
			inv.Respond(result.Fail[value.TypedValue](result.New(result.KindInvalidHandle, "engine %s is closed", e.id)))
			return
		}
	}

	start := time.Now()
	v, err := e.call(ent, params)
	if err == nil && !ent.desc.Return.IsVoid() && v.Type() != ent.desc.Return {
		err = result.New(result.KindTypeMismatch, "%s returned %s, registered %s", inv.Name, v.Type(), ent.desc.Return)
	}
	latency := time.Since(start)

	if err != nil {
		if result.KindOf(err) == result.KindNone {
			err = &result.Error{Kind: result.KindRemote, Description: err.Error()}
		}
		e.logger.Debug("command failed", "engine", e.id, "command", inv.Name, "call", inv.CallID, "error", err)
		e.logCall(inv, err, latency)
		inv.Respond(result.Fail[value.TypedValue](err))
		return
	}
	if ent.desc.Return.IsVoid() {
		v = value.Empty(ent.desc.Return)
	}
	e.logCall(inv, nil, latency)
	inv.Respond(result.Ok(v))
}

func (e *Engine) call(ent *entry, params []value.TypedValue) (v value.TypedValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = result.New(result.KindRemote, "handler panic: %v", r)
		}
	}()
	return ent.fn(e.ctx, params)
}

// Snapshot returns the engine's frame snapshot. Readers must lock it.
func (e *Engine) Snapshot() *frame.Snapshot { return e.snap }

// Tick runs produce with the snapshot locked and then publishes the next
// frame id. If produce fails the frame id is not advanced.
func (e *Engine) Tick(produce func(*frame.Snapshot) error) (uint64, error) {
	if !e.Live() {
		return 0, result.New(result.KindInvalidHandle, "engine %s is closed", e.id)
	}

	e.snap.Lock()
	err := produce(e.snap)
	id := e.snap.FrameID()
	if err == nil {
		id++
		err = e.snap.SetFrameID(id)
	}
	items, valid := e.snap.Len(), e.snap.ValidCount()
	e.snap.Unlock()

	if err != nil {
		return 0, err
	}
	e.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: e.id.String(),
		Direction: log.DirectionOut,
		Layer:     log.LayerFrame,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleEngine,
		ManagerID: e.id.String(),
		Snapshot:  &log.SnapshotEvent{FrameID: id, Items: items, Valid: valid},
	})
	return id, nil
}

// Run calls Tick every interval until ctx is done or the engine closes.
func (e *Engine) Run(ctx context.Context, interval time.Duration, produce func(*frame.Snapshot) error) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case <-t.C:
			if _, err := e.Tick(produce); err != nil {
				e.logger.Warn("frame production failed", "engine", e.id, "error", err)
			}
		}
	}
}

func (e *Engine) logCall(inv *command.Invocation, err error, latency time.Duration) {
	ev := &log.CommandEvent{
		CallID:     uint64(inv.CallID),
		Name:       inv.Name,
		State:      command.StateReturned.String(),
		ParamCount: len(inv.Params),
		DropReturn: inv.DropReturn,
		Latency:    &latency,
	}
	category := log.CategoryMessage
	if err != nil {
		ev.Kind = result.KindOf(err).String()
		category = log.CategoryError
	}
	e.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: e.id.String(),
		Direction: log.DirectionOut,
		Layer:     log.LayerCommand,
		Category:  category,
		LocalRole: log.RoleEngine,
		ManagerID: e.id.String(),
		Command:   ev,
	})
}

func (e *Engine) logState(old, state, reason string) {
	entity := log.StateEntityEngine
	if reason != "" {
		entity = log.StateEntityRegistry
	}
	e.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: e.id.String(),
		Layer:     log.LayerCommand,
		Category:  log.CategoryState,
		LocalRole: log.RoleEngine,
		ManagerID: e.id.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}
