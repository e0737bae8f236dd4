// Package command invokes named, typed engine operations.
//
// A Proxy is bound to one Manager (the engine side) and correlates every
// invocation with a CallID. A Handle binds a command name to a fixed
// Descriptor and marshals Go arguments into TypedValues:
//
//	add := command.NewHandle[int32](proxy, "add", command.Param[int32](), command.Param[int32]())
//	sum, err := add.Call(ctx, 500*time.Millisecond, int32(2), int32(3))
//
// Three policies control how the return value is delivered:
//
//	Immediate  send, then wait for the value
//	Delay      send; the caller polls or waits on the returned Call later
//	Drop       send and discard the value; the CallID is dead immediately
//
// Timeouts: WaitForever blocks until the value arrives, 0 polls once and
// fails with TIMEOUT if the value is not there, a positive duration waits at
// most that long. A timed out call stays outstanding and can be waited on
// again. Context cancellation is reported like a timeout.
//
// Calls follow UNSENT → SENT → {RETURNED, TIMED_OUT, DROPPED}. A return
// value is delivered exactly once; retrieving it again fails with
// INVALID_HANDLE.
package command
