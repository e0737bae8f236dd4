package command

import (
	"github.com/google/uuid"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/value"
)

// Manager is the engine side of a command exchange. The registration table
// behind Descriptor may change at any time.
type Manager interface {
	// ID identifies the manager instance.
	ID() uuid.UUID

	// Live returns false once the manager has shut down.
	Live() bool

	// Descriptor returns the registered signature of a command.
	Descriptor(name string) (Descriptor, bool)

	// MetaInfo returns the attribute store describing a command.
	MetaInfo(name string) (*attribute.Store, error)

	// Dispatch starts executing an invocation. It must not block on the
	// execution itself. Unless DropReturn is set, the manager calls
	// inv.Reply exactly once with the outcome.
	Dispatch(inv *Invocation) error
}

// ReplyFunc delivers the outcome of an invocation.
type ReplyFunc func(result.Outcome[value.TypedValue])

// Invocation is one call handed to a Manager.
type Invocation struct {
	CallID     CallID
	Name       string
	Params     []value.TypedValue
	DropReturn bool
	Reply      ReplyFunc
}

// Respond calls Reply if the caller wants the value.
func (inv *Invocation) Respond(o result.Outcome[value.TypedValue]) {
	if inv.DropReturn || inv.Reply == nil {
		return
	}
	inv.Reply(o)
}
