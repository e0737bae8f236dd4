// Package wire defines the CBOR encoding used when commands cross a process
// boundary.
//
// All maps use integer keys. A Message carries exactly one body selected by
// its Type:
//
//	Hello         engine → client   manager id and command table
//	Invoke        client → engine   call id, name, typed parameters
//	Return        engine → client   call id, status, typed return value
//	MetaRequest   client → engine   command name
//	MetaResponse  engine → client   the command's attribute store
//	Registry      engine → client   commands added or removed
//	Close         either            orderly shutdown
//
// Types travel as a TypeRef (registered name plus the 64-bit wire id), so
// both sides must register the same names. Values travel as a TypeRef plus
// the CBOR encoding of the payload; an empty value has no payload. Attribute
// stores (including nested ones) travel as their class, data type and the
// ordered attribute list.
package wire
