package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/transport"
	"github.com/motionsense/sense-go/pkg/value"
	"github.com/motionsense/sense-go/pkg/wire"
)

// Client is a command.Manager backed by a remote engine.
type Client struct {
	conn *transport.Conn
	ep   endpoint
	id   uuid.UUID
	cfg  Config
	live atomic.Bool

	mu       sync.Mutex
	commands map[string]command.Descriptor
	calls    map[uint64]*command.Invocation
	metas    map[uint64]chan *wire.MetaResponse
	onChange func(name string, removed bool)

	nextCall atomic.Uint64
	nextMeta atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	logger    *slog.Logger
}

var _ command.Manager = (*Client)(nil)

// Dial connects to a server at addr and performs the handshake.
func Dial(ctx context.Context, network, addr string, cfg Config) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(ctx, nc, cfg)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

// NewClient performs the handshake on rwc and starts reading. The client
// owns rwc from then on.
func NewClient(ctx context.Context, rwc io.ReadWriteCloser, cfg Config) (*Client, error) {
	cfg.fill()
	conn := transport.NewConn(rwc, cfg.MaxMessageSize)
	c := &Client{
		conn:     conn,
		cfg:      cfg,
		commands: make(map[string]command.Descriptor),
		calls:    make(map[uint64]*command.Invocation),
		metas:    make(map[uint64]chan *wire.MetaResponse),
		done:     make(chan struct{}),
		logger:   cfg.Logger,
		ep: endpoint{
			session:  uuid.NewString(),
			remote:   conn.RemoteAddr(),
			role:     log.RoleClient,
			protoLog: cfg.ProtocolLogger,
		},
	}
	conn.Framer().SetLogger(cfg.ProtocolLogger, c.ep.session, c.ep.remote, log.RoleClient)

	hello, err := c.handshake(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if c.id, err = uuid.Parse(hello.ManagerID); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: manager id %q", ErrUnexpectedMessage, hello.ManagerID)
	}
	c.ep.manager = hello.ManagerID
	c.applyRegistry(hello.Commands, nil)

	c.live.Store(true)
	c.ep.logState("CONNECTING", "CONNECTED", "")
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context) (*wire.Hello, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	type recv struct {
		m   *wire.Message
		err error
	}
	ch := make(chan recv, 1)
	go func() {
		m, err := c.receive()
		ch <- recv{m, err}
	}()

	select {
	case <-ctx.Done():
		// Unblocks the reader.
		_ = c.conn.Close()
		return nil, result.New(result.KindTimeout, "no hello from engine: %v", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.m.Type != wire.MsgHello {
			return nil, fmt.Errorf("%w: %s before hello", ErrUnexpectedMessage, r.m.Type)
		}
		if r.m.Hello.Version != wire.ProtocolVersion {
			return nil, fmt.Errorf("%w: engine %d, client %d", ErrVersionMismatch, r.m.Hello.Version, wire.ProtocolVersion)
		}
		return r.m.Hello, nil
	}
}

func (c *Client) receive() (*wire.Message, error) {
	data, err := c.conn.Receive()
	if err != nil {
		return nil, err
	}
	m, err := wire.DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	c.ep.logMessage(m, log.DirectionIn)
	return m, nil
}

func (c *Client) send(m *wire.Message) error {
	data, err := wire.EncodeMessage(m)
	if err != nil {
		return err
	}
	if err := c.conn.Send(data); err != nil {
		return err
	}
	c.ep.logMessage(m, log.DirectionOut)
	return nil
}

// SessionID identifies the client in protocol logs.
func (c *Client) SessionID() string { return c.ep.session }

// ID returns the remote engine's instance id.
func (c *Client) ID() uuid.UUID { return c.id }

// Live reports whether the session is open.
func (c *Client) Live() bool { return c.live.Load() }

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// OnChange sets a callback for registry updates pushed by the engine. It
// runs on the read goroutine and must not block.
func (c *Client) OnChange(fn func(name string, removed bool)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Commands returns the sorted names of the remote commands usable by this
// process.
func (c *Client) Commands() []string {
	c.mu.Lock()
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	c.mu.Unlock()
	slices.Sort(names)
	return names
}

// Descriptor returns the remote signature of name.
func (c *Client) Descriptor(name string) (command.Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.commands[name]
	if !ok {
		return command.Descriptor{}, false
	}
	return command.NewDescriptor(d.Return, d.Params...), true
}

// Dispatch sends inv to the engine.
func (c *Client) Dispatch(inv *command.Invocation) error {
	if !c.Live() {
		return result.New(result.KindInvalidHandle, "session %s is closed", c.ep.session)
	}
	if _, ok := c.Descriptor(inv.Name); !ok {
		return result.New(result.KindNameNotFound, "command %q is not registered", inv.Name)
	}
	params, err := wire.EncodeValues(inv.Params)
	if err != nil {
		return result.New(result.KindTypeMismatch, "%s: %v", inv.Name, err)
	}

	id := c.nextCall.Add(1)
	if !inv.DropReturn {
		c.mu.Lock()
		c.calls[id] = inv
		c.mu.Unlock()
	}
	err = c.send(&wire.Message{
		Type: wire.MsgInvoke,
		Invoke: &wire.Invoke{
			CallID:     id,
			Name:       inv.Name,
			Params:     params,
			DropReturn: inv.DropReturn,
		},
	})
	if err != nil {
		c.mu.Lock()
		delete(c.calls, id)
		c.mu.Unlock()
		return result.New(result.KindInvalidHandle, "send %s: %v", inv.Name, err)
	}
	return nil
}

// MetaInfo fetches the attribute store of name from the engine.
func (c *Client) MetaInfo(name string) (*attribute.Store, error) {
	if !c.Live() {
		return nil, result.New(result.KindInvalidHandle, "session %s is closed", c.ep.session)
	}

	id := c.nextMeta.Add(1)
	ch := make(chan *wire.MetaResponse, 1)
	c.mu.Lock()
	c.metas[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.metas, id)
		c.mu.Unlock()
	}()

	err := c.send(&wire.Message{
		Type:        wire.MsgMetaRequest,
		MetaRequest: &wire.MetaRequest{RequestID: id, Name: name},
	})
	if err != nil {
		return nil, result.New(result.KindInvalidHandle, "send meta request: %v", err)
	}

	t := time.NewTimer(c.cfg.RequestTimeout)
	defer t.Stop()
	select {
	case resp := <-ch:
		if err := resp.Status.Err(0, resp.Description); err != nil {
			return nil, err
		}
		if resp.Store == nil {
			return nil, result.New(result.KindRemote, "meta response for %q has no store", name)
		}
		return wire.DecodeStore(resp.Store)
	case <-c.done:
		return nil, result.New(result.KindInvalidHandle, "session %s closed", c.ep.session)
	case <-t.C:
		return nil, result.New(result.KindTimeout, "no meta info for %q within %s", name, c.cfg.RequestTimeout)
	}
}

// Close ends the session. Outstanding calls fail with INVALID_HANDLE.
func (c *Client) Close() error {
	if c.Live() {
		_ = c.send(&wire.Message{Type: wire.MsgClose, Close: &wire.Close{Reason: "client closed"}})
	}
	c.shutdown("client closed")
	<-c.done
	return nil
}

func (c *Client) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.live.Store(false)
		_ = c.conn.Close()
		c.ep.logState("CONNECTED", "CLOSED", reason)
		c.logger.Debug("remote session closed", "session", c.ep.session, "engine", c.id, "reason", reason)
	})
}

func (c *Client) readLoop() {
	reason := "connection lost"
	defer func() {
		c.shutdown(reason)
		c.failAll(reason)
		close(c.done)
	}()

	for {
		m, err := c.receive()
		if err != nil {
			if err != io.EOF && !c.conn.Closed() {
				c.ep.logError(err, "receive")
				c.logger.Warn("remote receive failed", "session", c.ep.session, "error", err)
			}
			return
		}
		switch m.Type {
		case wire.MsgReturn:
			c.handleReturn(m.Return)
		case wire.MsgMetaResponse:
			c.mu.Lock()
			ch, ok := c.metas[m.MetaResponse.RequestID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- m.MetaResponse:
				default:
					c.logger.Warn("duplicate meta response ignored", "session", c.ep.session, "request", m.MetaResponse.RequestID)
				}
			}
		case wire.MsgRegistry:
			c.applyRegistry(m.Registry.Added, m.Registry.Removed)
		case wire.MsgClose:
			reason = "engine closed: " + m.Close.Reason
			return
		default:
			c.logger.Warn("unexpected message", "session", c.ep.session, "type", m.Type)
		}
	}
}

func (c *Client) handleReturn(r *wire.Return) {
	c.mu.Lock()
	inv, ok := c.calls[r.CallID]
	delete(c.calls, r.CallID)
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("return for unknown call", "session", c.ep.session, "call", r.CallID)
		return
	}

	if err := r.Status.Err(r.Code, r.Description); err != nil {
		inv.Respond(result.Fail[value.TypedValue](err))
		return
	}
	if r.Value == nil {
		inv.Respond(result.Fail[value.TypedValue](result.New(result.KindRemote, "return of %s carries no value", inv.Name)))
		return
	}
	v, err := wire.DecodeValue(*r.Value)
	if err != nil {
		err = result.New(result.KindTypeMismatch, "decode return of %s: %v", inv.Name, err)
	}
	inv.Respond(result.Of(v, err))
}

func (c *Client) failAll(reason string) {
	c.mu.Lock()
	calls := c.calls
	c.calls = make(map[uint64]*command.Invocation)
	c.mu.Unlock()
	for _, inv := range calls {
		inv.Respond(result.Fail[value.TypedValue](result.New(result.KindInvalidHandle, "%s: %s", inv.Name, reason)))
	}
}

func (c *Client) applyRegistry(added []wire.Signature, removed []string) {
	c.mu.Lock()
	var changed []string
	var gone []string
	for _, name := range removed {
		if _, ok := c.commands[name]; ok {
			delete(c.commands, name)
			gone = append(gone, name)
		}
	}
	for _, sig := range added {
		d, err := descriptorOf(sig)
		if err != nil {
			// Types unknown to this process cannot be marshalled anyway.
			c.logger.Warn("skipping remote command", "session", c.ep.session, "command", sig.Name, "error", err)
			delete(c.commands, sig.Name)
			continue
		}
		c.commands[sig.Name] = d
		changed = append(changed, sig.Name)
	}
	fn := c.onChange
	c.mu.Unlock()

	if fn == nil {
		return
	}
	for _, name := range gone {
		fn(name, true)
	}
	for _, name := range changed {
		fn(name, false)
	}
}
