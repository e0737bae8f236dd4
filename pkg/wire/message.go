package wire

import (
	"errors"
	"fmt"
)

// ProtocolVersion is sent in Hello.
const ProtocolVersion uint8 = 1

// MsgType selects the body of a Message.
type MsgType uint8

const (
	MsgHello        MsgType = 1
	MsgInvoke       MsgType = 2
	MsgReturn       MsgType = 3
	MsgMetaRequest  MsgType = 4
	MsgMetaResponse MsgType = 5
	MsgRegistry     MsgType = 6
	MsgClose        MsgType = 7
)

// String returns the message type name.
func (t MsgType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgInvoke:
		return "INVOKE"
	case MsgReturn:
		return "RETURN"
	case MsgMetaRequest:
		return "META_REQUEST"
	case MsgMetaResponse:
		return "META_RESPONSE"
	case MsgRegistry:
		return "REGISTRY"
	case MsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrBodyMismatch is returned when a message's body does not match its type.
var ErrBodyMismatch = errors.New("message body does not match type")

// Message is the unit exchanged on a stream. Exactly the body matching Type
// is set.
type Message struct {
	Type         MsgType       `cbor:"1,keyasint"`
	Hello        *Hello        `cbor:"2,keyasint,omitempty"`
	Invoke       *Invoke       `cbor:"3,keyasint,omitempty"`
	Return       *Return       `cbor:"4,keyasint,omitempty"`
	MetaRequest  *MetaRequest  `cbor:"5,keyasint,omitempty"`
	MetaResponse *MetaResponse `cbor:"6,keyasint,omitempty"`
	Registry     *Registry     `cbor:"7,keyasint,omitempty"`
	Close        *Close        `cbor:"8,keyasint,omitempty"`
}

// Validate checks that exactly the body selected by Type is present.
func (m *Message) Validate() error {
	// Indexed by MsgType - 1.
	bodies := []bool{
		m.Hello != nil,
		m.Invoke != nil,
		m.Return != nil,
		m.MetaRequest != nil,
		m.MetaResponse != nil,
		m.Registry != nil,
		m.Close != nil,
	}
	set := 0
	for _, present := range bodies {
		if present {
			set++
		}
	}
	if m.Type < MsgHello || m.Type > MsgClose || set != 1 || !bodies[m.Type-1] {
		return fmt.Errorf("%w: %s", ErrBodyMismatch, m.Type)
	}
	if m.Type == MsgInvoke && m.Invoke.CallID == 0 {
		return errors.New("call id 0 is reserved")
	}
	return nil
}

// Signature is a command name with its parameter and return types.
type Signature struct {
	Name   string    `cbor:"1,keyasint"`
	Params []TypeRef `cbor:"2,keyasint"`
	Return TypeRef   `cbor:"3,keyasint"`
}

// Hello opens a session. The engine sends it first.
type Hello struct {
	Version   uint8       `cbor:"1,keyasint"`
	ManagerID string      `cbor:"2,keyasint"`
	Commands  []Signature `cbor:"3,keyasint"`
}

// Invoke requests execution of a command.
type Invoke struct {
	CallID     uint64  `cbor:"1,keyasint"`
	Name       string  `cbor:"2,keyasint"`
	Params     []Value `cbor:"3,keyasint"`
	DropReturn bool    `cbor:"4,keyasint,omitempty"`
}

// Return delivers the outcome of an Invoke.
type Return struct {
	CallID      uint64 `cbor:"1,keyasint"`
	Status      Status `cbor:"2,keyasint"`
	Code        int    `cbor:"3,keyasint,omitempty"`
	Description string `cbor:"4,keyasint,omitempty"`
	Value       *Value `cbor:"5,keyasint,omitempty"`
}

// MetaRequest asks for a command's attribute store.
type MetaRequest struct {
	RequestID uint64 `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint"`
}

// MetaResponse answers a MetaRequest.
type MetaResponse struct {
	RequestID   uint64 `cbor:"1,keyasint"`
	Status      Status `cbor:"2,keyasint"`
	Description string `cbor:"3,keyasint,omitempty"`
	Store       *Store `cbor:"4,keyasint,omitempty"`
}

// Registry announces commands added to or removed from the engine.
type Registry struct {
	Added   []Signature `cbor:"1,keyasint,omitempty"`
	Removed []string    `cbor:"2,keyasint,omitempty"`
}

// Close ends a session.
type Close struct {
	Reason string `cbor:"1,keyasint,omitempty"`
}
