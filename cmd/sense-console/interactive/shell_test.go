package interactive

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionsense/sense-go/cmd/sense-console/sim"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/engine"
	"github.com/motionsense/sense-go/pkg/log"
)

type shellFixture struct {
	shell  *Shell
	engine *engine.Engine
	proxy  *command.Proxy
	events *log.MemoryLogger
	out    *bytes.Buffer
}

func newShell(t *testing.T) *shellFixture {
	t.Helper()
	e, device, err := sim.NewEngine(engine.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	_, err = e.Tick(sim.NewProducer(device).Produce)
	require.NoError(t, err)

	events := log.NewMemoryLogger(0)
	pcfg := command.DefaultConfig()
	pcfg.ProtocolLogger = events
	p := command.NewProxy(pcfg)

	var out bytes.Buffer
	sh, err := NewShell(context.Background(), p, e, &out, Options{
		Snapshot: e.Snapshot(),
		Events:   events,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	return &shellFixture{shell: sh, engine: e, proxy: p, events: events, out: &out}
}

// exec runs line and returns what the shell printed.
func (f *shellFixture) exec(t *testing.T, line string) string {
	t.Helper()
	f.out.Reset()
	assert.True(t, f.shell.Exec(line))
	return f.out.String()
}

func TestShellCommands(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "commands")
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "(int32, int32) int32")
	assert.Contains(t, out, "set_mode")
}

func TestShellImmediateCall(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "call add 2 40")
	assert.Contains(t, out, "#1 = 42")
	assert.Zero(t, f.proxy.Pending())

	out = f.exec(t, "call add 1")
	assert.Contains(t, out, "expected 2 arguments")

	out = f.exec(t, "call reboot")
	assert.Contains(t, out, "NAME_NOT_FOUND")
}

func TestShellDelayedCall(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "call -policy delay scale 1000 2.5")
	assert.Contains(t, out, "#1 pending")

	out = f.exec(t, "pending")
	assert.Contains(t, out, "scale")

	out = f.exec(t, "wait 1 forever")
	assert.Contains(t, out, "#1 = float64(2500)")

	// Consumed: a second retrieval fails.
	out = f.exec(t, "try 1")
	assert.Contains(t, out, "INVALID_HANDLE")

	out = f.exec(t, "pending")
	assert.Contains(t, out, "No pending calls")
}

func TestShellTryUntilReady(t *testing.T) {
	f := newShell(t)

	f.exec(t, "call -policy delay gain")
	assert.Eventually(t, func() bool {
		ready, err := f.proxy.IsReturnValueReady(1)
		return err == nil && ready
	}, time.Second, 5*time.Millisecond)

	out := f.exec(t, "try #1")
	assert.Contains(t, out, "#1 = int32(5)")
}

func TestShellDropAndVoid(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "call -policy drop add 1 1")
	assert.Contains(t, out, "return value dropped")
	out = f.exec(t, "wait 1 0")
	assert.Contains(t, out, "INVALID_HANDLE")

	out = f.exec(t, "call set_mode FAR")
	assert.Contains(t, out, "no return value")
	assert.Eventually(t, func() bool {
		f.out.Reset()
		f.shell.Exec("call mode")
		return bytes.Contains(f.out.Bytes(), []byte("= int64(1)"))
	}, time.Second, 10*time.Millisecond)
}

func TestShellMeta(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "meta set_gain")
	assert.Contains(t, out, "FUNCTION_SIGNATURE")
	assert.Contains(t, out, `param 0 "gain"`)

	out = f.exec(t, "meta set_gain 0")
	assert.Contains(t, out, "RANGED<int32>")
	assert.Contains(t, out, "RANGE_MAX: int32(10)")

	out = f.exec(t, "meta add return")
	assert.Contains(t, out, "<int32>")

	out = f.exec(t, "meta add 5")
	assert.Contains(t, out, "INVALID_INDEX")
}

func TestShellFrame(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "frame")
	assert.Contains(t, out, "Frame 1, 3/3 valid")
	assert.Contains(t, out, "depth")
	assert.Contains(t, out, "hands")

	out = f.exec(t, "frame")
	assert.Contains(t, out, "Frame 1 (unchanged)")
}

func TestShellLog(t *testing.T) {
	f := newShell(t)

	f.exec(t, "call add 1 2")
	out := f.exec(t, "log 5")
	assert.Contains(t, out, "add")
	assert.Contains(t, out, "SENT")
	assert.Contains(t, out, "RETURNED")
	assert.NotEmpty(t, f.events.Commands("RETURNED"))
}

func TestShellAfterEngineClose(t *testing.T) {
	f := newShell(t)
	require.NoError(t, f.engine.Close())

	out := f.exec(t, "call add 1 2")
	assert.Contains(t, out, "INVALID_HANDLE")

	out = f.exec(t, "status")
	assert.Contains(t, out, "not bound to a live manager")
}

func TestShellQuitAndUnknown(t *testing.T) {
	f := newShell(t)

	out := f.exec(t, "frobnicate")
	assert.Contains(t, out, "Unknown command: frobnicate")

	assert.False(t, f.shell.Exec("quit"))
}
