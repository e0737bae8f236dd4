package remote

import (
	"fmt"
	"time"

	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/wire"
)

func signatureOf(name string, d command.Descriptor) wire.Signature {
	sig := wire.Signature{
		Name:   name,
		Params: make([]wire.TypeRef, len(d.Params)),
		Return: wire.RefOf(d.Return),
	}
	for i, p := range d.Params {
		sig.Params[i] = wire.RefOf(p)
	}
	return sig
}

func descriptorOf(sig wire.Signature) (command.Descriptor, error) {
	ret, err := sig.Return.Resolve()
	if err != nil {
		return command.Descriptor{}, fmt.Errorf("%s return: %w", sig.Name, err)
	}
	params := make([]typeinfo.TypeInfo, len(sig.Params))
	for i, r := range sig.Params {
		if params[i], err = r.Resolve(); err != nil {
			return command.Descriptor{}, fmt.Errorf("%s parameter %d: %w", sig.Name, i, err)
		}
	}
	return command.NewDescriptor(ret, params...), nil
}

// messageEvent describes m for the protocol log.
func messageEvent(m *wire.Message) *log.MessageEvent {
	ev := &log.MessageEvent{Type: m.Type}
	switch m.Type {
	case wire.MsgInvoke:
		ev.CallID = m.Invoke.CallID
		ev.Command = m.Invoke.Name
	case wire.MsgReturn:
		ev.CallID = m.Return.CallID
		ev.Status = &m.Return.Status
	case wire.MsgMetaRequest:
		ev.CallID = m.MetaRequest.RequestID
		ev.Command = m.MetaRequest.Name
	case wire.MsgMetaResponse:
		ev.CallID = m.MetaResponse.RequestID
		ev.Status = &m.MetaResponse.Status
	}
	return ev
}

// endpoint is the shared send/log plumbing of both sides.
type endpoint struct {
	session  string
	manager  string
	remote   string
	role     log.Role
	protoLog log.Logger
}

func (ep *endpoint) logMessage(m *wire.Message, dir log.Direction) {
	ep.protoLog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  ep.session,
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		LocalRole:  ep.role,
		RemoteAddr: ep.remote,
		ManagerID:  ep.manager,
		Message:    messageEvent(m),
	})
}

func (ep *endpoint) logState(old, state, reason string) {
	ep.protoLog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  ep.session,
		Layer:      log.LayerWire,
		Category:   log.CategoryState,
		LocalRole:  ep.role,
		RemoteAddr: ep.remote,
		ManagerID:  ep.manager,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old,
			NewState: state,
			Reason:   reason,
		},
	})
}

func (ep *endpoint) logError(err error, context string) {
	ep.protoLog.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  ep.session,
		Layer:      log.LayerWire,
		Category:   log.CategoryError,
		LocalRole:  ep.role,
		RemoteAddr: ep.remote,
		ManagerID:  ep.manager,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
			Context: context,
		},
	})
}
