package command

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

// Config configures a Proxy.
type Config struct {
	// Logger receives operational log lines. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives a CommandEvent for every call step.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default proxy configuration.
func DefaultConfig() Config {
	return Config{Logger: slog.Default()}
}

// pendingCall is the proxy side of one outstanding invocation.
type pendingCall struct {
	name    string
	ret     typeinfo.TypeInfo
	sent    time.Time
	state   CallState
	gone    bool // abandoned by Unbind or Bind
	done    chan struct{}
	once    sync.Once
	outcome result.Outcome[value.TypedValue]
}

func (pc *pendingCall) deliver(o result.Outcome[value.TypedValue]) bool {
	delivered := false
	pc.once.Do(func() {
		pc.outcome = o
		close(pc.done)
		delivered = true
	})
	return delivered
}

func (pc *pendingCall) ready() bool {
	select {
	case <-pc.done:
		return true
	default:
		return false
	}
}

// Proxy sends invocations to a Manager and retrieves their return values by
// CallID. It keeps only the manager's id as identity and checks Live on
// every operation, so a manager that shuts down invalidates the proxy
// without the proxy keeping it alive.
type Proxy struct {
	mu sync.Mutex

	manager   Manager
	managerID uuid.UUID
	pending   map[CallID]*pendingCall

	nextID    atomic.Uint64
	sessionID string

	logger   *slog.Logger
	protoLog log.Logger
}

// NewProxy creates an unbound proxy.
func NewProxy(cfg Config) *Proxy {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Proxy{
		pending:   make(map[CallID]*pendingCall),
		sessionID: uuid.NewString(),
		logger:    cfg.Logger,
		protoLog:  log.OrNoop(cfg.ProtocolLogger),
	}
}

// SessionID identifies the proxy in protocol logs.
func (p *Proxy) SessionID() string { return p.sessionID }

// Bind attaches the proxy to m. Calls outstanding on a previous manager are
// abandoned.
func (p *Proxy) Bind(m Manager) error {
	if m == nil {
		return result.New(result.KindInvalidHandle, "bind to nil manager")
	}
	if !m.Live() {
		return result.New(result.KindInvalidHandle, "manager %s is not live", m.ID())
	}

	p.mu.Lock()
	old := p.managerID
	var abandoned map[CallID]*pendingCall
	if old != m.ID() {
		abandoned = p.abandonLocked()
	}
	p.manager = m
	p.managerID = m.ID()
	p.mu.Unlock()

	p.abandon(abandoned, "rebound")
	p.logState(old, "BOUND", m.ID().String())
	p.logger.Debug("proxy bound", "session", p.sessionID, "manager", m.ID())
	return nil
}

// Unbind detaches the proxy. Outstanding calls are abandoned and their
// waiters fail with INVALID_HANDLE.
func (p *Proxy) Unbind() {
	p.mu.Lock()
	old := p.managerID
	abandoned := p.abandonLocked()
	p.manager = nil
	p.managerID = uuid.Nil
	p.mu.Unlock()

	p.abandon(abandoned, "unbound")
	if old != uuid.Nil {
		p.logState(old, "UNBOUND", "")
		p.logger.Debug("proxy unbound", "session", p.sessionID, "manager", old)
	}
}

// Close unbinds the proxy.
func (p *Proxy) Close() error {
	p.Unbind()
	return nil
}

// Valid returns true if the proxy is bound to a live manager.
func (p *Proxy) Valid() bool {
	_, err := p.bound()
	return err == nil
}

// ManagerID returns the id of the bound manager, or uuid.Nil.
func (p *Proxy) ManagerID() uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.managerID
}

// Pending returns the number of calls awaiting retrieval.
func (p *Proxy) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Proxy) bound() (Manager, error) {
	p.mu.Lock()
	m := p.manager
	id := p.managerID
	p.mu.Unlock()

	if m == nil {
		return nil, result.New(result.KindInvalidHandle, "proxy is not bound")
	}
	if !m.Live() || m.ID() != id {
		return nil, result.New(result.KindInvalidHandle, "manager %s is gone", id)
	}
	return m, nil
}

// Lookup returns the manager's current descriptor for name.
func (p *Proxy) Lookup(name string) (Descriptor, error) {
	m, err := p.bound()
	if err != nil {
		return Descriptor{}, err
	}
	d, ok := m.Descriptor(name)
	if !ok {
		return Descriptor{}, result.New(result.KindNameNotFound, "command %q is not registered", name)
	}
	return d, nil
}

// MetaInfo returns the attribute store describing the named command.
func (p *Proxy) MetaInfo(name string) (*attribute.Store, error) {
	m, err := p.bound()
	if err != nil {
		return nil, err
	}
	if _, ok := m.Descriptor(name); !ok {
		return nil, result.New(result.KindNameNotFound, "command %q is not registered", name)
	}
	return m.MetaInfo(name)
}

// SendCommand dispatches name with params. desc is the caller's view of the
// signature and must be compatible with the registered one; every parameter
// must carry data of the declared type. With dropReturn the call is DROPPED
// as soon as it is sent and its id cannot be used for retrieval.
func (p *Proxy) SendCommand(name string, params []value.TypedValue, desc Descriptor, dropReturn bool) (CallID, error) {
	m, err := p.bound()
	if err != nil {
		return 0, err
	}

	remote, ok := m.Descriptor(name)
	if !ok {
		return 0, result.New(result.KindNameNotFound, "command %q is not registered", name)
	}
	if !desc.Compatible(remote) {
		return 0, result.New(result.KindSignatureMismatch, "%s: have %s, registered %s", name, desc, remote)
	}
	if len(params) != len(desc.Params) {
		return 0, result.New(result.KindSignatureMismatch, "%s: %d parameters, want %d", name, len(params), len(desc.Params))
	}
	for i, v := range params {
		if v.Type() != desc.Params[i] {
			return 0, result.New(result.KindSignatureMismatch, "%s: parameter %d is %s, want %s", name, i, v.Type(), desc.Params[i])
		}
		if !v.IsValid() {
			return 0, result.New(result.KindInvalidHandle, "%s: parameter %d is empty", name, i)
		}
	}

	id := CallID(p.nextID.Add(1))
	inv := &Invocation{
		CallID:     id,
		Name:       name,
		Params:     params,
		DropReturn: dropReturn,
	}

	var pc *pendingCall
	if !dropReturn {
		pc = &pendingCall{
			name:  name,
			ret:   desc.Return,
			sent:  time.Now(),
			state: StateSent,
			done:  make(chan struct{}),
		}
		// Registered before dispatch: the reply may arrive before Dispatch returns.
		p.mu.Lock()
		p.pending[id] = pc
		p.mu.Unlock()
		inv.Reply = func(o result.Outcome[value.TypedValue]) { p.deliver(id, pc, o) }
	}

	if err := m.Dispatch(inv); err != nil {
		if pc != nil {
			p.mu.Lock()
			delete(p.pending, id)
			p.mu.Unlock()
		}
		p.logCall(id, name, StateUnsent, len(params), desc.Return, dropReturn, err, nil)
		return 0, err
	}

	state := StateSent
	if dropReturn {
		state = StateDropped
	}
	p.logCall(id, name, state, len(params), desc.Return, dropReturn, nil, nil)
	return id, nil
}

func (p *Proxy) deliver(id CallID, pc *pendingCall, o result.Outcome[value.TypedValue]) {
	if !pc.deliver(o) {
		p.mu.Lock()
		gone := pc.gone
		p.mu.Unlock()
		if gone {
			p.logger.Debug("reply for released call discarded", "session", p.sessionID, "call", id)
			return
		}
		p.logger.Warn("duplicate reply ignored", "session", p.sessionID, "call", id)
		return
	}
	p.logger.Debug("reply received", "session", p.sessionID, "call", id, "ok", o.IsOk())
}

// Release forgets the outstanding call id. Its value is discarded when it
// arrives, waiters fail with INVALID_HANDLE, and later retrieval fails the
// same way.
func (p *Proxy) Release(id CallID) error {
	p.mu.Lock()
	pc, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
		pc.gone = true
	}
	p.mu.Unlock()
	if !ok {
		return result.New(result.KindInvalidHandle, "call %d is not outstanding", id)
	}

	pc.deliver(result.Fail[value.TypedValue](result.New(result.KindInvalidHandle, "call %d was released", id)))
	p.logger.Debug("call released", "session", p.sessionID, "call", id)
	return nil
}

// lookup returns the outstanding call for id after checking the binding.
func (p *Proxy) lookup(id CallID) (*pendingCall, error) {
	if _, err := p.bound(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pc, ok := p.pending[id]
	if !ok {
		return nil, result.New(result.KindInvalidHandle, "call %d is not outstanding", id)
	}
	return pc, nil
}

// IsReturnValueReady reports whether the value of call id has arrived. It
// never changes the call's state.
func (p *Proxy) IsReturnValueReady(id CallID) (bool, error) {
	pc, err := p.lookup(id)
	if err != nil {
		return false, err
	}
	return pc.ready(), nil
}

// State returns the state of an outstanding call.
func (p *Proxy) State(id CallID) (CallState, error) {
	pc, err := p.lookup(id)
	if err != nil {
		return StateUnsent, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return pc.state, nil
}

// TryGetReturnValue retrieves the value of call id without blocking. It
// fails with NOT_READY until the value has arrived. A successful retrieval
// consumes the value.
func (p *Proxy) TryGetReturnValue(id CallID) (value.TypedValue, error) {
	pc, err := p.lookup(id)
	if err != nil {
		return value.TypedValue{}, err
	}
	if !pc.ready() {
		return value.TypedValue{}, result.New(result.KindNotReady, "call %d has not returned", id)
	}
	return p.consume(id, pc)
}

// WaitForReturnValue waits for the value of call id. A negative timeout
// (WaitForever) waits until it arrives, zero polls once. On TIMEOUT the call
// stays outstanding. Cancelling ctx also ends the wait with TIMEOUT.
func (p *Proxy) WaitForReturnValue(ctx context.Context, id CallID, timeout time.Duration) (value.TypedValue, error) {
	pc, err := p.lookup(id)
	if err != nil {
		return value.TypedValue{}, err
	}

	if timeout == 0 {
		if pc.ready() {
			return p.consume(id, pc)
		}
		return value.TypedValue{}, p.timedOut(id, pc, "not returned")
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-pc.done:
		return p.consume(id, pc)
	case <-expired:
		return value.TypedValue{}, p.timedOut(id, pc, "no value after "+timeout.String())
	case <-ctx.Done():
		return value.TypedValue{}, p.timedOut(id, pc, ctx.Err().Error())
	}
}

func (p *Proxy) timedOut(id CallID, pc *pendingCall, why string) error {
	p.mu.Lock()
	if p.pending[id] == pc {
		pc.state = StateTimedOut
	}
	p.mu.Unlock()

	err := result.New(result.KindTimeout, "call %d: %s", id, why)
	latency := time.Since(pc.sent)
	p.logCall(id, pc.name, StateTimedOut, 0, pc.ret, false, err, &latency)
	return err
}

// consume removes the call and returns its validated value.
func (p *Proxy) consume(id CallID, pc *pendingCall) (value.TypedValue, error) {
	p.mu.Lock()
	if p.pending[id] != pc {
		gone := pc.gone
		p.mu.Unlock()
		if gone {
			return value.TypedValue{}, result.New(result.KindInvalidHandle, "call %d was abandoned", id)
		}
		return value.TypedValue{}, result.New(result.KindInvalidHandle, "call %d was already retrieved", id)
	}
	delete(p.pending, id)
	pc.state = StateReturned
	p.mu.Unlock()

	latency := time.Since(pc.sent)
	v, err := pc.outcome.Get()
	if err == nil && v.Type() != pc.ret {
		err = result.New(result.KindTypeMismatch, "call %d returned %s, want %s", id, v.Type(), pc.ret)
	}
	p.logCall(id, pc.name, StateReturned, 0, pc.ret, false, err, &latency)
	if err != nil {
		return value.TypedValue{}, err
	}
	return v, nil
}

// abandonLocked detaches every outstanding call. p.mu must be held.
func (p *Proxy) abandonLocked() map[CallID]*pendingCall {
	if len(p.pending) == 0 {
		return nil
	}
	out := p.pending
	for _, pc := range out {
		pc.gone = true
	}
	p.pending = make(map[CallID]*pendingCall)
	return out
}

func (p *Proxy) abandon(calls map[CallID]*pendingCall, reason string) {
	for id, pc := range calls {
		pc.deliver(result.Fail[value.TypedValue](result.New(result.KindInvalidHandle, "call %d abandoned: proxy %s", id, reason)))
	}
	if len(calls) > 0 {
		p.logger.Debug("calls abandoned", "session", p.sessionID, "count", len(calls), "reason", reason)
	}
}

func (p *Proxy) logCall(id CallID, name string, state CallState, params int, ret typeinfo.TypeInfo, drop bool, err error, latency *time.Duration) {
	ev := &log.CommandEvent{
		CallID:     uint64(id),
		Name:       name,
		State:      state.String(),
		ParamCount: params,
		ReturnType: ret.Name(),
		DropReturn: drop,
		Latency:    latency,
	}
	category := log.CategoryMessage
	if err != nil {
		ev.Kind = result.KindOf(err).String()
		category = log.CategoryError
	}
	direction := log.DirectionOut
	if state == StateReturned || state == StateTimedOut {
		direction = log.DirectionIn
	}
	p.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: p.sessionID,
		Direction: direction,
		Layer:     log.LayerCommand,
		Category:  category,
		LocalRole: log.RoleClient,
		ManagerID: p.ManagerID().String(),
		Command:   ev,
	})
}

func (p *Proxy) logState(old uuid.UUID, state, manager string) {
	oldState := "UNBOUND"
	if old != uuid.Nil {
		oldState = "BOUND"
	}
	p.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: p.sessionID,
		Layer:     log.LayerCommand,
		Category:  log.CategoryState,
		LocalRole: log.RoleClient,
		ManagerID: manager,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityProxy,
			OldState: oldState,
			NewState: state,
		},
	})
}
