// Package remote carries command invocations across a byte stream.
//
// A Server exposes an *engine.Engine on every accepted stream. A Client is
// the other end: it implements command.Manager, so a command.Proxy binds to
// it exactly as it would to an in-process engine.
//
// Messages are pkg/wire CBOR messages in pkg/transport frames. On connect
// the server sends Hello with its instance id and command table; after that
// the client sends Invoke and MetaRequest, the server answers with Return and
// MetaResponse and pushes Registry updates whenever the engine's command
// table changes. Either side may send Close.
//
// Client call ids are independent of proxy call ids: several proxies can
// share one Client.
package remote
