package log

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/motionsense/sense-go/pkg/wire"
)

// eventCodec encodes log files. Timestamps are RFC 3339 strings with
// nanosecond precision.
var eventCodec = wire.MustCodec(cbor.TimeRFC3339Nano)

// EncodeEvent encodes an event with deterministic key order.
func EncodeEvent(event Event) ([]byte, error) {
	return eventCodec.Marshal(event)
}

// DecodeEvent decodes one event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := eventCodec.Unmarshal(data, &event)
	return event, err
}
