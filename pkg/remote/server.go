package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/engine"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/transport"
	"github.com/motionsense/sense-go/pkg/value"
	"github.com/motionsense/sense-go/pkg/wire"
)

// registryBacklog is the number of registry changes queued per session
// before the session is dropped.
const registryBacklog = 64

// Server exposes an engine on byte streams.
type Server struct {
	engine *engine.Engine
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server for e.
func NewServer(e *engine.Engine, cfg Config) *Server {
	cfg.fill()
	return &Server{
		engine:   e,
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[*session]struct{}),
	}
}

// Serve accepts connections on ln until ctx is done or ln fails. Sessions
// still open when Serve returns are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	defer s.Close()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ServeConn(ctx, nc); err != nil {
				s.logger.Debug("session ended", "remote", nc.RemoteAddr(), "error", err)
			}
		}()
	}
}

// Sessions returns the number of open sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every open session with a Close message and waits for them.
func (s *Server) Close() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for ss := range s.sessions {
		open = append(open, ss)
	}
	s.mu.Unlock()
	for _, ss := range open {
		ss.close("server stopped")
	}
	s.wg.Wait()
}

// ServeConn runs one session on rwc until the peer closes it, the engine
// closes or ctx is done. It closes rwc.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := transport.NewConn(rwc, s.cfg.MaxMessageSize)
	ss := &session{
		srv:     s,
		conn:    conn,
		updates: make(chan engine.Change, registryBacklog),
		ep: endpoint{
			session:  uuid.NewString(),
			manager:  s.engine.ID().String(),
			remote:   conn.RemoteAddr(),
			role:     log.RoleEngine,
			protoLog: s.cfg.ProtocolLogger,
		},
	}
	conn.Framer().SetLogger(s.cfg.ProtocolLogger, ss.ep.session, ss.ep.remote, log.RoleEngine)

	s.mu.Lock()
	s.sessions[ss] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, ss)
		s.mu.Unlock()
	}()

	return ss.run(ctx)
}

type session struct {
	srv     *Server
	conn    *transport.Conn
	ep      endpoint
	updates chan engine.Change

	closeOnce sync.Once
}

func (ss *session) send(m *wire.Message) error {
	data, err := wire.EncodeMessage(m)
	if err != nil {
		return err
	}
	if err := ss.conn.Send(data); err != nil {
		return err
	}
	ss.ep.logMessage(m, log.DirectionOut)
	return nil
}

func (ss *session) close(reason string) {
	ss.closeOnce.Do(func() {
		if !ss.conn.Closed() {
			_ = ss.send(&wire.Message{Type: wire.MsgClose, Close: &wire.Close{Reason: reason}})
		}
		_ = ss.conn.Close()
		ss.ep.logState("OPEN", "CLOSED", reason)
	})
}

func (ss *session) run(ctx context.Context) error {
	e := ss.srv.engine
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopWatch := e.Watch(func(c engine.Change) {
		select {
		case ss.updates <- c:
		default:
			ss.srv.logger.Warn("registry backlog full, dropping session", "session", ss.ep.session)
			cancel()
		}
	})
	defer stopWatch()

	hello := &wire.Hello{Version: wire.ProtocolVersion, ManagerID: e.ID().String()}
	for _, name := range e.Commands() {
		if d, ok := e.Descriptor(name); ok {
			hello.Commands = append(hello.Commands, signatureOf(name, d))
		}
	}
	if err := ss.send(&wire.Message{Type: wire.MsgHello, Hello: hello}); err != nil {
		ss.close("hello failed")
		return err
	}
	ss.ep.logState("", "OPEN", "")

	var pushWg sync.WaitGroup
	pushWg.Add(1)
	go func() {
		defer pushWg.Done()
		ss.push(ctx)
	}()
	defer pushWg.Wait()

	go func() {
		reason := "session ended"
		select {
		case <-ctx.Done():
		case <-e.Done():
			reason = "engine closed"
		}
		cancel()
		ss.close(reason)
	}()

	for {
		data, err := ss.conn.Receive()
		if err != nil {
			cancel()
			if err == io.EOF || ss.conn.Closed() {
				return nil
			}
			ss.ep.logError(err, "receive")
			return err
		}
		m, err := wire.DecodeMessage(data)
		if err != nil {
			ss.ep.logError(err, "decode")
			ss.srv.logger.Warn("dropping undecodable message", "session", ss.ep.session, "error", err)
			continue
		}
		ss.ep.logMessage(m, log.DirectionIn)

		switch m.Type {
		case wire.MsgInvoke:
			ss.invoke(m.Invoke)
		case wire.MsgMetaRequest:
			ss.meta(m.MetaRequest)
		case wire.MsgClose:
			cancel()
			_ = ss.conn.Close()
			return nil
		default:
			ss.srv.logger.Warn("unexpected message", "session", ss.ep.session, "type", m.Type)
		}
	}
}

// push forwards registry changes until ctx is done.
func (ss *session) push(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-ss.updates:
			reg := &wire.Registry{}
			if c.Removed {
				reg.Removed = []string{c.Name}
			} else {
				reg.Added = []wire.Signature{signatureOf(c.Name, c.Descriptor)}
			}
			if err := ss.send(&wire.Message{Type: wire.MsgRegistry, Registry: reg}); err != nil {
				return
			}
		}
	}
}

func (ss *session) invoke(in *wire.Invoke) {
	reply := func(o result.Outcome[value.TypedValue]) {
		ret := &wire.Return{CallID: in.CallID}
		v, err := o.Get()
		if err == nil {
			var ev wire.Value
			if ev, err = wire.EncodeValue(v); err == nil {
				ret.Value = &ev
			}
		}
		if err != nil {
			ret.Status = wire.StatusOf(err)
			ret.Description = err.Error()
			var re *result.Error
			if errors.As(err, &re) {
				ret.Code = re.Code
				ret.Description = re.Description
			}
		}
		if err := ss.send(&wire.Message{Type: wire.MsgReturn, Return: ret}); err != nil {
			ss.srv.logger.Debug("return not delivered", "session", ss.ep.session, "call", in.CallID, "error", err)
		}
	}

	params, err := wire.DecodeValues(in.Params)
	if err != nil {
		err = result.New(result.KindTypeMismatch, "%s: %v", in.Name, err)
	} else {
		err = ss.srv.engine.Dispatch(&command.Invocation{
			CallID:     command.CallID(in.CallID),
			Name:       in.Name,
			Params:     params,
			DropReturn: in.DropReturn,
			Reply:      reply,
		})
	}
	if err != nil && !in.DropReturn {
		reply(result.Fail[value.TypedValue](err))
	}
}

func (ss *session) meta(req *wire.MetaRequest) {
	resp := &wire.MetaResponse{RequestID: req.RequestID}
	store, err := ss.srv.engine.MetaInfo(req.Name)
	if err == nil {
		resp.Store, err = wire.EncodeStore(store)
	}
	if err != nil {
		resp.Status = wire.StatusOf(err)
		resp.Description = err.Error()
		var re *result.Error
		if errors.As(err, &re) {
			resp.Description = re.Description
		}
	}
	if err := ss.send(&wire.Message{Type: wire.MsgMetaResponse, MetaResponse: resp}); err != nil {
		ss.srv.logger.Debug("meta response not delivered", "session", ss.ep.session, "error", err)
	}
}
