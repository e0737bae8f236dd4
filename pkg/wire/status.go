package wire

import "github.com/motionsense/sense-go/pkg/result"

// Status is the outcome code carried by replies. Non-zero codes map 1:1 to
// result kinds.
type Status uint8

const (
	StatusOK                 = Status(result.KindNone)
	StatusInvalidHandle      = Status(result.KindInvalidHandle)
	StatusNameNotFound       = Status(result.KindNameNotFound)
	StatusNoSuchAttribute    = Status(result.KindNoSuchAttribute)
	StatusInvalidIndex       = Status(result.KindInvalidIndex)
	StatusWrongAttributeType = Status(result.KindWrongAttributeType)
	StatusSignatureMismatch  = Status(result.KindSignatureMismatch)
	StatusTypeMismatch       = Status(result.KindTypeMismatch)
	StatusNotReady           = Status(result.KindNotReady)
	StatusTimeout            = Status(result.KindTimeout)
	StatusReadOnly           = Status(result.KindReadOnly)
	StatusRemote             = Status(result.KindRemote)
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return result.Kind(s).String()
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// StatusOf returns the status for err. Errors that carry no kind map to
// StatusRemote.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if k := result.KindOf(err); k != result.KindNone {
		return Status(k)
	}
	return StatusRemote
}

// Err converts a failure status back into an error. It returns nil for
// StatusOK.
func (s Status) Err(code int, description string) error {
	if s == StatusOK {
		return nil
	}
	k := result.Kind(s)
	if k.String() == "UNKNOWN" {
		k = result.KindRemote
	}
	return &result.Error{Kind: k, Code: code, Description: description}
}
