package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/motionsense/sense-go/pkg/log"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

func boundProxy(t *testing.T) (*Proxy, *fakeManager) {
	t.Helper()
	m := newFakeManager()
	m.register("add", addDesc, addInt32)
	p := NewProxy(DefaultConfig())
	require.NoError(t, p.Bind(m))
	t.Cleanup(p.Unbind)
	return p, m
}

func addParams(a, b int32) []value.TypedValue {
	return []value.TypedValue{value.New(a), value.New(b)}
}

func TestUnboundProxyFailsInvalidHandle(t *testing.T) {
	p := NewProxy(DefaultConfig())
	ctx := context.Background()

	assert.False(t, p.Valid())
	assert.Equal(t, uuid.Nil, p.ManagerID())

	_, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.WaitForReturnValue(ctx, 1, time.Millisecond)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.IsReturnValueReady(1)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.TryGetReturnValue(1)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.MetaInfo("add")
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.Lookup("add")
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
}

func TestBindRejectsNilAndDeadManager(t *testing.T) {
	p := NewProxy(Config{})
	assert.ErrorIs(t, p.Bind(nil), result.ErrInvalidHandle)

	m := newFakeManager()
	m.live.Store(false)
	assert.ErrorIs(t, p.Bind(m), result.ErrInvalidHandle)
	assert.False(t, p.Valid())
}

func TestSendCommandValidation(t *testing.T) {
	p, _ := boundProxy(t)

	tests := []struct {
		name   string
		cmd    string
		params []value.TypedValue
		desc   Descriptor
		kind   result.Kind
	}{
		{"UnknownName", "mul", addParams(1, 2), addDesc, result.KindNameNotFound},
		{"FewerDeclaredParams", "add", addParams(1, 2), NewDescriptor(Param[int32](), Param[int32]()), result.KindSignatureMismatch},
		{"DeclaredParamType", "add", addParams(1, 2), NewDescriptor(Param[int32](), Param[int64](), Param[int32]()), result.KindSignatureMismatch},
		{"DeclaredReturnType", "add", addParams(1, 2), NewDescriptor(Param[int64](), Param[int32](), Param[int32]()), result.KindSignatureMismatch},
		{"ParamCount", "add", addParams(1, 2)[:1], addDesc, result.KindSignatureMismatch},
		{"ParamType", "add", []value.TypedValue{value.New(int32(1)), value.New("2")}, addDesc, result.KindSignatureMismatch},
		{"EmptyParam", "add", []value.TypedValue{value.New(int32(1)), value.Empty(Param[int32]())}, addDesc, result.KindInvalidHandle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.SendCommand(tt.cmd, tt.params, tt.desc, false)
			require.Error(t, err)
			assert.Equal(t, tt.kind, result.KindOf(err))
			assert.Zero(t, id)
		})
	}
	assert.Zero(t, p.Pending())
}

func TestWaitReturnsValue(t *testing.T) {
	p, _ := boundProxy(t)

	id, err := p.SendCommand("add", addParams(2, 3), addDesc, false)
	require.NoError(t, err)
	assert.NotZero(t, id)

	v, err := p.WaitForReturnValue(context.Background(), id, time.Second)
	require.NoError(t, err)
	sum, err := value.GetCopy[int32](v)
	require.NoError(t, err)
	assert.Equal(t, int32(5), sum)
	assert.Zero(t, p.Pending())
}

func TestConsumeOnce(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 1), addDesc, false)
	require.NoError(t, err)

	ready, err := p.IsReturnValueReady(id)
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = p.TryGetReturnValue(id)
	assert.ErrorIs(t, err, result.ErrNotReady)

	state, err := p.State(id)
	require.NoError(t, err)
	assert.Equal(t, StateSent, state)

	for _, inv := range m.takeHeld() {
		inv.Respond(result.Ok(value.New(int32(2))))
	}

	ready, err = p.IsReturnValueReady(id)
	require.NoError(t, err)
	assert.True(t, ready)
	ready, err = p.IsReturnValueReady(id)
	require.NoError(t, err)
	assert.True(t, ready, "polling must not change state")

	v, err := p.TryGetReturnValue(id)
	require.NoError(t, err)
	assert.Equal(t, "int32(2)", v.String())

	_, err = p.TryGetReturnValue(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.WaitForReturnValue(context.Background(), id, 0)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.IsReturnValueReady(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
}

func TestDropReleasesCall(t *testing.T) {
	p, m := boundProxy(t)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, true)
	require.NoError(t, err)
	assert.Zero(t, p.Pending())

	_, err = p.WaitForReturnValue(context.Background(), id, 10*time.Millisecond)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.TryGetReturnValue(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.State(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)

	m.mu.Lock()
	require.Len(t, m.dropped, 1)
	assert.True(t, m.dropped[0].DropReturn)
	m.mu.Unlock()
}

func TestTimeoutLeavesCallRetrievable(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(4, 4), addDesc, false)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.WaitForReturnValue(context.Background(), id, 30*time.Millisecond)
	assert.ErrorIs(t, err, result.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	state, err := p.State(id)
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, state)
	assert.Equal(t, 1, p.Pending())

	for _, inv := range m.takeHeld() {
		inv.Respond(result.Ok(value.New(int32(8))))
	}
	v, err := p.WaitForReturnValue(context.Background(), id, WaitForever)
	require.NoError(t, err)
	got, _ := value.GetCopy[int32](v)
	assert.Equal(t, int32(8), got)
}

func TestZeroTimeoutPollsOnce(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.WaitForReturnValue(context.Background(), id, 0)
	assert.ErrorIs(t, err, result.ErrTimeout)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	for _, inv := range m.takeHeld() {
		inv.Respond(result.Ok(value.New(int32(3))))
	}
	_, err = p.WaitForReturnValue(context.Background(), id, 0)
	assert.NoError(t, err)
}

func TestContextCancelActsLikeTimeout(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.WaitForReturnValue(ctx, id, WaitForever)
	assert.ErrorIs(t, err, result.ErrTimeout)

	state, err := p.State(id)
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, state)
}

func TestCorrelationManyOutstanding(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	const n = 64
	ids := make(map[CallID]int32, n)
	for i := int32(0); i < n; i++ {
		id, err := p.SendCommand("add", addParams(i, i), addDesc, false)
		require.NoError(t, err)
		_, dup := ids[id]
		require.False(t, dup, "call id %d issued twice", id)
		ids[id] = i
	}
	assert.Equal(t, n, p.Pending())

	// Answer in reverse order.
	held := m.takeHeld()
	for i := len(held) - 1; i >= 0; i-- {
		inv := held[i]
		inv.Respond(result.Of(addInt32(inv.Params)))
	}

	for id, i := range ids {
		v, err := p.WaitForReturnValue(context.Background(), id, time.Second)
		require.NoError(t, err)
		got, _ := value.GetCopy[int32](v)
		assert.Equal(t, 2*i, got, "call %d", id)
	}
	assert.Zero(t, p.Pending())
}

func TestConcurrentCallers(t *testing.T) {
	p, _ := boundProxy(t)

	var wg sync.WaitGroup
	for g := int32(0); g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int32(0); i < 20; i++ {
				id, err := p.SendCommand("add", addParams(g, i), addDesc, false)
				if !assert.NoError(t, err) {
					return
				}
				v, err := p.WaitForReturnValue(context.Background(), id, time.Second)
				if !assert.NoError(t, err) {
					return
				}
				got, _ := value.GetCopy[int32](v)
				assert.Equal(t, g+i, got)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, p.Pending())
}

func TestReturnTypeIsValidated(t *testing.T) {
	p, m := boundProxy(t)
	m.register("liar", addDesc, func([]value.TypedValue) (value.TypedValue, error) {
		return value.New("not a number"), nil
	})

	id, err := p.SendCommand("liar", addParams(1, 2), addDesc, false)
	require.NoError(t, err)
	_, err = p.WaitForReturnValue(context.Background(), id, time.Second)
	assert.ErrorIs(t, err, result.ErrTypeMismatch)

	_, err = p.TryGetReturnValue(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
}

func TestRemoteFailurePropagates(t *testing.T) {
	p, m := boundProxy(t)
	m.register("fail", addDesc, func([]value.TypedValue) (value.TypedValue, error) {
		return value.TypedValue{}, &result.Error{Kind: result.KindRemote, Code: 17, Description: "sensor offline"}
	})

	id, err := p.SendCommand("fail", addParams(1, 2), addDesc, false)
	require.NoError(t, err)
	_, err = p.WaitForReturnValue(context.Background(), id, time.Second)
	require.ErrorIs(t, err, result.ErrRemote)

	var re *result.Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 17, re.Code)
}

func TestDispatchErrorIsReturned(t *testing.T) {
	m := &mockManager{}
	id := uuid.New()
	m.On("ID").Return(id)
	m.On("Live").Return(true)
	m.On("Descriptor", "add").Return(addDesc, true)
	m.On("Dispatch", mock.AnythingOfType("*command.Invocation")).
		Return(result.New(result.KindInvalidHandle, "stream closed")).Once()

	p := NewProxy(DefaultConfig())
	require.NoError(t, p.Bind(m))

	_, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	assert.Zero(t, p.Pending())
	m.AssertExpectations(t)
}

func TestDispatchSeesInvocation(t *testing.T) {
	m := &mockManager{}
	m.On("ID").Return(uuid.New())
	m.On("Live").Return(true)
	m.On("Descriptor", "add").Return(addDesc, true)
	m.On("Dispatch", mock.MatchedBy(func(inv *Invocation) bool {
		return inv.Name == "add" && len(inv.Params) == 2 && !inv.DropReturn && inv.Reply != nil && inv.CallID != 0
	})).Run(func(args mock.Arguments) {
		inv := args.Get(0).(*Invocation)
		inv.Respond(result.Ok(value.New(int32(42))))
	}).Return(nil)

	p := NewProxy(DefaultConfig())
	require.NoError(t, p.Bind(m))

	// The reply arrives before Dispatch returns.
	id, err := p.SendCommand("add", addParams(40, 2), addDesc, false)
	require.NoError(t, err)
	ready, err := p.IsReturnValueReady(id)
	require.NoError(t, err)
	assert.True(t, ready)
	m.AssertExpectations(t)
}

func TestDuplicateReplyIgnored(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)
	held := m.takeHeld()
	require.Len(t, held, 1)
	held[0].Respond(result.Ok(value.New(int32(3))))
	held[0].Respond(result.Ok(value.New(int32(99))))

	v, err := p.TryGetReturnValue(id)
	require.NoError(t, err)
	got, _ := value.GetCopy[int32](v)
	assert.Equal(t, int32(3), got)
}

func TestReleaseForgetsCall(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)
	require.Equal(t, 1, p.Pending())

	waitErr := make(chan error, 1)
	go func() {
		_, err := p.WaitForReturnValue(context.Background(), id, WaitForever)
		waitErr <- err
	}()

	require.NoError(t, p.Release(id))
	assert.Zero(t, p.Pending())
	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, result.ErrInvalidHandle)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Release")
	}

	held := m.takeHeld()
	require.Len(t, held, 1)
	held[0].Respond(result.Ok(value.New(int32(3))))
	assert.Zero(t, p.Pending())

	_, err = p.TryGetReturnValue(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	assert.ErrorIs(t, p.Release(id), result.ErrInvalidHandle)
}

func TestManagerShutdownInvalidatesProxy(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)
	require.True(t, p.Valid())

	m.live.Store(false)
	assert.False(t, p.Valid())
	_, err = p.IsReturnValueReady(id)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
	_, err = p.SendCommand("add", addParams(1, 2), addDesc, false)
	assert.ErrorIs(t, err, result.ErrInvalidHandle)
}

func TestUnbindAbandonsWaiters(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.WaitForReturnValue(context.Background(), id, WaitForever)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Unbind()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, result.ErrInvalidHandle)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Unbind")
	}
	assert.Zero(t, p.Pending())

	// A late reply from the engine is harmless.
	for _, inv := range m.takeHeld() {
		inv.Respond(result.Ok(value.New(int32(3))))
	}
}

func TestRebindToSameManagerKeepsCalls(t *testing.T) {
	p, m := boundProxy(t)
	m.setHold(true)

	_, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)

	require.NoError(t, p.Bind(m))
	assert.Equal(t, 1, p.Pending())

	other := newFakeManager()
	require.NoError(t, p.Bind(other))
	assert.Zero(t, p.Pending())
	assert.Equal(t, other.ID(), p.ManagerID())
}

func TestProxyLogsCallSteps(t *testing.T) {
	mem := log.NewMemoryLogger(0)
	m := newFakeManager()
	m.register("add", addDesc, addInt32)
	p := NewProxy(Config{ProtocolLogger: mem})
	require.NoError(t, p.Bind(m))

	id, err := p.SendCommand("add", addParams(1, 2), addDesc, false)
	require.NoError(t, err)
	_, err = p.WaitForReturnValue(context.Background(), id, time.Second)
	require.NoError(t, err)
	_, err = p.SendCommand("add", addParams(1, 2), addDesc, true)
	require.NoError(t, err)

	sent := mem.Commands(StateSent.String())
	require.Len(t, sent, 1)
	assert.Equal(t, uint64(id), sent[0].CallID)
	assert.Equal(t, 2, sent[0].ParamCount)
	assert.Equal(t, "int32", sent[0].ReturnType)

	returned := mem.Commands(StateReturned.String())
	require.Len(t, returned, 1)
	require.NotNil(t, returned[0].Latency)

	dropped := mem.Commands(StateDropped.String())
	require.Len(t, dropped, 1)
	assert.True(t, dropped[0].DropReturn)

	var states []string
	for _, e := range mem.Events() {
		assert.Equal(t, p.SessionID(), e.SessionID)
		if e.StateChange != nil {
			states = append(states, e.StateChange.NewState)
		}
	}
	assert.Equal(t, []string{"BOUND"}, states)
}

func TestDescriptor(t *testing.T) {
	a := NewDescriptor(Param[int32](), Param[int32](), Param[float64]())
	assert.Equal(t, 2, a.Arity())
	assert.Equal(t, "(int32, float64) int32", a.String())
	assert.True(t, a.Compatible(NewDescriptor(Param[int32](), Param[int32](), Param[float64]())))
	assert.False(t, a.Compatible(NewDescriptor(Param[int32](), Param[float64](), Param[int32]())))
	assert.False(t, a.Compatible(NewDescriptor(Param[int64](), Param[int32](), Param[float64]())))
	assert.False(t, a.Compatible(NewDescriptor(Param[int32](), Param[int32]())))

	params := []typeinfo.TypeInfo{Param[int32]()}
	d := NewDescriptor(typeinfo.VoidType, params...)
	params[0] = Param[string]()
	assert.Equal(t, Param[int32](), d.Params[0])
	assert.Equal(t, "(int32) void", d.String())
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "TIMED_OUT", StateTimedOut.String())
	assert.True(t, StateTimedOut.Outstanding())
	assert.False(t, StateDropped.Outstanding())
	assert.Equal(t, "DELAY", Delay.String())
	pol, ok := ParsePolicy("DROP")
	assert.True(t, ok)
	assert.Equal(t, Drop, pol)
	_, ok = ParsePolicy("LATER")
	assert.False(t, ok)
	assert.Equal(t, "17", CallID(17).String())
}
