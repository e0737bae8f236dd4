package sense_test

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/engine"
	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/manifest"
	"github.com/motionsense/sense-go/pkg/remote"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
)

func demoHandlers(gain *atomic.Int32) map[string]any {
	var mode atomic.Int64
	return map[string]any{
		"add":      func(a, b int32) int32 { return a + b },
		"set_gain": func(g int32) { gain.Store(g) },
		"gain":     func() int32 { return gain.Load() },
		"set_mode": func(m int64) { mode.Store(m) },
		"mode":     func() int64 { return mode.Load() },
		"scale": func(ctx context.Context, mm, factor float64) (float64, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(mm) * time.Millisecond):
			}
			return mm * factor, nil
		},
	}
}

// startRemote serves the demo engine on a loopback listener and returns a
// proxy bound to a client connected to it.
func startRemote(t *testing.T, protoLog log.Logger) (*engine.Engine, *remote.Client, *command.Proxy, *atomic.Int32) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	m, err := manifest.Demo()
	require.NoError(t, err)
	gain := &atomic.Int32{}
	gain.Store(5)
	e, err := m.NewEngine(engine.DefaultConfig(), demoHandlers(gain))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	scfg := remote.DefaultConfig()
	scfg.ProtocolLogger = protoLog
	srv := remote.NewServer(e, scfg)
	go func() { _ = srv.Serve(ctx, ln) }()

	ccfg := remote.DefaultConfig()
	ccfg.ProtocolLogger = protoLog
	client, err := remote.Dial(ctx, "tcp", ln.Addr().String(), ccfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	pcfg := command.DefaultConfig()
	pcfg.ProtocolLogger = protoLog
	p := command.NewProxy(pcfg)
	require.NoError(t, p.Bind(client))
	t.Cleanup(func() { _ = p.Close() })
	return e, client, p, gain
}

// TestE2E_ImmediateCall sends a two-parameter command over TCP and waits
// for its value.
func TestE2E_ImmediateCall(t *testing.T) {
	_, client, p, _ := startRemote(t, nil)

	assert.Equal(t, []string{"add", "gain", "mode", "scale", "set_gain", "set_mode"}, client.Commands())

	add := command.NewHandle[int32](p, "add", command.Param[int32](), command.Param[int32]())
	require.True(t, add.Valid())

	v, err := add.Call(context.Background(), 500*time.Millisecond, int32(3), int32(4))
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)
	assert.Zero(t, p.Pending())
}

// TestE2E_RangedParameterMeta reads a ranged parameter's attributes through
// the remote session.
func TestE2E_RangedParameterMeta(t *testing.T) {
	_, _, p, _ := startRemote(t, nil)

	setGain := command.NewHandle[typeinfo.Void](p, "set_gain", command.Param[int32]())
	meta, err := setGain.MetaInfo()
	require.NoError(t, err)
	assert.Equal(t, attribute.ClassFunctionSignature, meta.Class())
	assert.Equal(t, "gain", meta.ParamName(0))

	pm, err := meta.Param(0)
	require.NoError(t, err)
	assert.Equal(t, attribute.ClassRanged, pm.Class())

	def, err := attribute.Value[int32](pm, attribute.DefaultValue)
	require.NoError(t, err)
	lo, err := attribute.Value[int32](pm, attribute.RangeMin)
	require.NoError(t, err)
	hi, err := attribute.Value[int32](pm, attribute.RangeMax)
	require.NoError(t, err)
	assert.Equal(t, []int32{5, 0, 10}, []int32{def, lo, hi})

	_, err = attribute.Value[int64](pm, attribute.RangeMax)
	assert.ErrorIs(t, err, result.ErrWrongAttributeType)
}

// TestE2E_DelayedCallsAndTimeout keeps several calls outstanding and lets
// one time out before it is retrieved.
func TestE2E_DelayedCallsAndTimeout(t *testing.T) {
	_, _, p, gain := startRemote(t, nil)
	ctx := context.Background()

	scale := command.NewHandle[float64](p, "scale", command.Param[float64](), command.Param[float64]())
	slow, err := scale.Invoke(ctx, command.Delay, 0, 200.0, 2.0)
	require.NoError(t, err)
	fast, err := scale.Invoke(ctx, command.Delay, 0, 1.0, 3.0)
	require.NoError(t, err)
	assert.NotEqual(t, slow.ID(), fast.ID())

	_, err = slow.Wait(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, result.ErrTimeout)
	assert.Equal(t, command.StateTimedOut, slow.State())

	v, err := fast.Wait(ctx, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9)

	v, err = slow.Wait(ctx, command.WaitForever)
	require.NoError(t, err)
	assert.InDelta(t, 400.0, v, 1e-9)

	_, err = slow.TryGet()
	assert.ErrorIs(t, err, result.ErrInvalidHandle)

	setGain := command.NewHandle[typeinfo.Void](p, "set_gain", command.Param[int32]())
	_, err = setGain.Invoke(ctx, command.Immediate, time.Second, int32(9))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return gain.Load() == 9 }, time.Second, 5*time.Millisecond)
}

// TestE2E_EngineShutdown invalidates the proxy when the remote engine goes
// away.
func TestE2E_EngineShutdown(t *testing.T) {
	e, client, p, _ := startRemote(t, nil)

	require.NoError(t, e.Close())
	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice engine shutdown")
	}

	assert.False(t, p.Valid())
	add := command.NewHandle[int32](p, "add", command.Param[int32](), command.Param[int32]())
	_, err := add.Call(context.Background(), 100*time.Millisecond, int32(1), int32(2))
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
}

// TestE2E_ProtocolLog captures both sides into one file and reads a single
// command back out of it.
func TestE2E_ProtocolLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e2e.slog")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)

	_, _, p, _ := startRemote(t, fl)
	add := command.NewHandle[int32](p, "add", command.Param[int32](), command.Param[int32]())
	_, err = add.Call(context.Background(), time.Second, int32(1), int32(1))
	require.NoError(t, err)
	_, err = command.NewHandle[int32](p, "gain").Call(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, fl.Close())

	layer := log.LayerWire
	r, err := log.NewFilteredReader(path, log.Filter{Command: "add", Layer: &layer})
	require.NoError(t, err)
	defer r.Close()
	events, err := r.All()
	require.NoError(t, err)

	// Invoke out and in, return is not named.
	require.Len(t, events, 2)
	for _, ev := range events {
		require.NotNil(t, ev.Message)
		assert.Equal(t, "add", ev.Message.Command)
	}
}
