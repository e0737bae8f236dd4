package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Codec holds the CBOR encoder and decoder modes for one kind of stream.
// Keys are written in canonical order with definite lengths. Decoding
// ignores duplicate and unknown keys so newer peers can extend messages.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec builds a Codec. tm selects how time.Time values are written.
func NewCodec(tm cbor.TimeMode) (*Codec, error) {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          tm,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder mode: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// MustCodec is like NewCodec but panics on error. For package-level codecs.
func MustCodec(tm cbor.TimeMode) *Codec {
	c, err := NewCodec(tm)
	if err != nil {
		panic(err)
	}
	return c
}

// Marshal encodes v.
func (c *Codec) Marshal(v any) ([]byte, error) { return c.enc.Marshal(v) }

// Unmarshal decodes data into v.
func (c *Codec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

// NewEncoder returns a streaming encoder writing to w.
func (c *Codec) NewEncoder(w io.Writer) *cbor.Encoder { return c.enc.NewEncoder(w) }

// NewDecoder returns a streaming decoder reading from r.
func (c *Codec) NewDecoder(r io.Reader) *cbor.Decoder { return c.dec.NewDecoder(r) }

// messages is the codec of the invocation protocol.
var messages = MustCodec(cbor.TimeUnix)

// Marshal encodes v with the protocol codec.
func Marshal(v any) ([]byte, error) { return messages.Marshal(v) }

// Unmarshal decodes data with the protocol codec.
func Unmarshal(data []byte, v any) error { return messages.Unmarshal(data, v) }

// EncodeMessage validates and encodes a message.
func EncodeMessage(m *Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return Marshal(m)
}

// DecodeMessage decodes and validates a message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return &m, nil
}
