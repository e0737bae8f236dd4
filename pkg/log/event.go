package log

import (
	"time"

	"github.com/motionsense/sense-go/pkg/wire"
)

// Event is one protocol event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the proxy or remote session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether the event was captured on the client or the engine side.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address when the event crossed a stream.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// ManagerID is the UUID of the command manager involved.
	ManagerID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	Command     *CommandEvent     `cbor:"12,keyasint,omitempty"` // Call lifecycle
	Snapshot    *SnapshotEvent    `cbor:"13,keyasint,omitempty"` // Frame publication
	StateChange *StateChangeEvent `cbor:"14,keyasint,omitempty"` // Binding/session state
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerCommand is the command proxy layer.
	LayerCommand Layer = 2
	// LayerFrame is the frame snapshot layer.
	LayerFrame Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerCommand:
		return "COMMAND"
	case LayerFrame:
		return "FRAME"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer converts a layer name to a Layer.
func ParseLayer(s string) (Layer, bool) {
	for _, l := range []Layer{LayerTransport, LayerWire, LayerCommand, LayerFrame} {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a message or call.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory converts a category name to a Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range []Category{CategoryMessage, CategoryState, CategoryError} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Role indicates which side of a command exchange recorded the event.
type Role uint8

const (
	// RoleClient is the invoking side.
	RoleClient Role = 0
	// RoleEngine is the executing side.
	RoleEngine Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	// Type is the wire message type.
	Type wire.MsgType `cbor:"1,keyasint"`

	// CallID correlates invoke/return pairs (0 for other messages).
	CallID uint64 `cbor:"2,keyasint,omitempty"`

	// Command is the command name for invoke and meta messages.
	Command string `cbor:"3,keyasint,omitempty"`

	// Status is set on return and meta responses.
	Status *wire.Status `cbor:"4,keyasint,omitempty"`
}

// CommandEvent captures one step of a call's lifecycle at the proxy.
type CommandEvent struct {
	// CallID identifies the call.
	CallID uint64 `cbor:"1,keyasint"`

	// Name is the command name.
	Name string `cbor:"2,keyasint"`

	// State is the call state after this step (SENT, RETURNED, ...).
	State string `cbor:"3,keyasint"`

	// ParamCount is the number of parameters sent.
	ParamCount int `cbor:"4,keyasint,omitempty"`

	// ReturnType is the expected return type name.
	ReturnType string `cbor:"5,keyasint,omitempty"`

	// DropReturn is set for fire-and-forget sends.
	DropReturn bool `cbor:"6,keyasint,omitempty"`

	// Kind is the failure kind when the step failed.
	Kind string `cbor:"7,keyasint,omitempty"`

	// Latency is the time from send to this step.
	Latency *time.Duration `cbor:"8,keyasint,omitempty"`
}

// SnapshotEvent captures publication of a frame snapshot.
type SnapshotEvent struct {
	// FrameID is the published frame id.
	FrameID uint64 `cbor:"1,keyasint"`

	// Items is the number of data items in the snapshot.
	Items int `cbor:"2,keyasint"`

	// Valid is the number of items carrying valid data.
	Valid int `cbor:"3,keyasint"`
}

// StateChangeEvent captures binding and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityProxy indicates a proxy bind/unbind.
	StateEntityProxy StateEntity = 0
	// StateEntityEngine indicates an engine open/close.
	StateEntityEngine StateEntity = 1
	// StateEntitySession indicates a remote session change.
	StateEntitySession StateEntity = 2
	// StateEntityRegistry indicates a command registry change.
	StateEntityRegistry StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityProxy:
		return "PROXY"
	case StateEntityEngine:
		return "ENGINE"
	case StateEntitySession:
		return "SESSION"
	case StateEntityRegistry:
		return "REGISTRY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
