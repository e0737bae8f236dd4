package command

import (
	"context"
	"sync"
	"time"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

// Handle binds a command name to a fixed signature returning R. It holds no
// per-call state and may be copied and shared freely; in-flight state lives
// in the Call returned by Invoke.
type Handle[R any] struct {
	proxy *Proxy
	name  string
	desc  Descriptor
}

// NewHandle creates a handle for the command name with the given parameter
// types. Use typeinfo.Void as R for commands without a return value.
func NewHandle[R any](p *Proxy, name string, params ...typeinfo.TypeInfo) Handle[R] {
	return Handle[R]{
		proxy: p,
		name:  name,
		desc:  NewDescriptor(typeinfo.Of[R](), params...),
	}
}

// Name returns the command name.
func (h Handle[R]) Name() string { return h.name }

// Descriptor returns the handle's signature.
func (h Handle[R]) Descriptor() Descriptor {
	return NewDescriptor(h.desc.Return, h.desc.Params...)
}

// Valid reports whether the proxy is bound to a live manager that still
// registers this command with a compatible signature. Nothing is cached.
func (h Handle[R]) Valid() bool {
	if h.proxy == nil {
		return false
	}
	d, err := h.proxy.Lookup(h.name)
	return err == nil && d.Compatible(h.desc)
}

// MetaInfo returns the attribute store describing the command.
func (h Handle[R]) MetaInfo() (*attribute.Store, error) {
	if h.proxy == nil {
		return nil, result.New(result.KindInvalidHandle, "handle %q has no proxy", h.name)
	}
	return h.proxy.MetaInfo(h.name)
}

// Attribute returns one attribute of the command's store.
func (h Handle[R]) Attribute(name string) (value.TypedValue, error) {
	s, err := h.MetaInfo()
	if err != nil {
		return value.TypedValue{}, err
	}
	return s.Get(name)
}

// marshal converts args to TypedValues tagged with the declared parameter
// types. TypedValue arguments are passed through as they are.
func (h Handle[R]) marshal(args []any) ([]value.TypedValue, error) {
	if len(args) != len(h.desc.Params) {
		return nil, result.New(result.KindSignatureMismatch, "%s takes %d arguments, got %d", h.name, len(h.desc.Params), len(args))
	}
	params := make([]value.TypedValue, len(args))
	for i, a := range args {
		if tv, ok := a.(value.TypedValue); ok {
			params[i] = tv
			continue
		}
		tv, err := value.NewOf(a, h.desc.Params[i])
		if err != nil {
			return nil, err
		}
		params[i] = tv
	}
	return params, nil
}

// Invoke sends the command under the given policy. For Immediate it then
// waits up to timeout; on TIMEOUT the returned Call is still usable for a
// later wait. Delay and Drop ignore timeout. Commands returning
// typeinfo.Void are always sent without a return value.
func (h Handle[R]) Invoke(ctx context.Context, policy Policy, timeout time.Duration, args ...any) (*Call[R], error) {
	if h.proxy == nil {
		return nil, result.New(result.KindInvalidHandle, "handle %q has no proxy", h.name)
	}
	params, err := h.marshal(args)
	if err != nil {
		return nil, err
	}

	void := h.desc.Return.IsVoid()
	drop := policy == Drop || void
	id, err := h.proxy.SendCommand(h.name, params, h.desc, drop)
	if err != nil {
		return nil, err
	}

	c := &Call[R]{proxy: h.proxy, id: id, state: StateSent}
	switch {
	case void:
		c.state = StateReturned
		c.void = true
		c.ok = true
	case drop:
		c.state = StateDropped
	case policy == Immediate:
		if _, err := c.Wait(ctx, timeout); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Call invokes the command with the Immediate policy and returns its value.
// A call that times out is released: its value is discarded when it
// arrives. Use Invoke to keep the Call when a timeout is possible.
func (h Handle[R]) Call(ctx context.Context, timeout time.Duration, args ...any) (R, error) {
	var zero R
	c, err := h.Invoke(ctx, Immediate, timeout, args...)
	if err != nil {
		if c != nil {
			_ = c.Abandon()
		}
		return zero, err
	}
	v, _ := c.Value()
	return v, nil
}

// Call is one invocation made through a Handle. A Call has a single owner;
// its methods may be used from any goroutine but not concurrently with
// each other on the same call.
type Call[R any] struct {
	proxy *Proxy
	id    CallID

	mu    sync.Mutex
	state CallState
	void  bool
	ok    bool
	value R
}

// ID returns the correlation id.
func (c *Call[R]) ID() CallID { return c.id }

// State returns the call's current state.
func (c *Call[R]) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Value returns the retrieved value. The flag is false until a retrieval
// succeeded.
func (c *Call[R]) Value() (R, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.ok
}

// Abandon releases an outstanding call at the proxy and marks it Dropped.
// It does nothing for calls that are no longer outstanding.
func (c *Call[R]) Abandon() error {
	c.mu.Lock()
	if !c.state.Outstanding() {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDropped
	c.mu.Unlock()
	return c.proxy.Release(c.id)
}

// check fails for calls whose value can no longer be retrieved. Void calls
// have nothing to retrieve and report done.
func (c *Call[R]) check() (done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateDropped:
		return false, result.New(result.KindInvalidHandle, "call %d was dropped", c.id)
	case StateReturned:
		if c.void {
			return true, nil
		}
		return false, result.New(result.KindInvalidHandle, "call %d was already retrieved", c.id)
	}
	return false, nil
}

// Ready reports whether the value has arrived.
func (c *Call[R]) Ready() (bool, error) {
	if done, err := c.check(); done || err != nil {
		return done, err
	}
	return c.proxy.IsReturnValueReady(c.id)
}

// TryGet retrieves the value without blocking; NOT_READY until it arrives.
func (c *Call[R]) TryGet() (R, error) {
	if done, err := c.check(); done || err != nil {
		var zero R
		return zero, err
	}
	return c.finish(c.proxy.TryGetReturnValue(c.id))
}

// Wait waits for the value. See Proxy.WaitForReturnValue for the timeout
// convention.
func (c *Call[R]) Wait(ctx context.Context, timeout time.Duration) (R, error) {
	if done, err := c.check(); done || err != nil {
		var zero R
		return zero, err
	}
	return c.finish(c.proxy.WaitForReturnValue(ctx, c.id, timeout))
}

// finish records the outcome of a retrieval.
func (c *Call[R]) finish(v value.TypedValue, err error) (R, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero R
	if err != nil {
		switch result.KindOf(err) {
		case result.KindTimeout:
			c.state = StateTimedOut
		case result.KindNotReady:
		default:
			// The proxy no longer holds the call.
			c.state = StateReturned
		}
		return zero, err
	}
	c.state = StateReturned
	r, err := value.GetCopy[R](v)
	if err != nil {
		return zero, err
	}
	c.value = r
	c.ok = true
	return r, nil
}
