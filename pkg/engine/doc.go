// Package engine is an in-process command manager and frame producer.
//
// An Engine owns a table of named command handlers and a frame snapshot.
// It implements command.Manager, so a command.Proxy can be bound to it
// directly, and it is what pkg/remote serves over a stream.
//
// Handlers run on their own goroutines; Dispatch only validates and queues.
// At most Config.MaxConcurrent handlers run at a time.
//
//	e, _ := engine.New(engine.DefaultConfig())
//	_ = e.RegisterFunc("add", func(a, b int32) int32 { return a + b }, nil)
//
//	p := command.NewProxy(command.DefaultConfig())
//	_ = p.Bind(e)
//	sum, err := command.NewHandle[int32](p, "add", command.Param[int32](), command.Param[int32]()).
//		Call(ctx, 500*time.Millisecond, int32(2), int32(3))
package engine
