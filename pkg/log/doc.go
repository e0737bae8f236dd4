// Package log captures protocol events for sense-go.
//
// It is separate from operational logging (slog): a proxy, engine or remote
// session hands every call step, wire message, frame publication and state
// change to a Logger so the exchange can be replayed and filtered later.
//
//	cfg := command.DefaultConfig()
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	fl, _ := log.NewFileLogger("session.slog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Log files are a stream of CBOR-encoded events with integer keys. The
// sense-log tool views, filters and exports them.
package log
