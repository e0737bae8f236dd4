package command

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/value"
)

// mockManager is a testify mock of Manager.
type mockManager struct {
	mock.Mock
}

func (m *mockManager) ID() uuid.UUID {
	return m.Called().Get(0).(uuid.UUID)
}

func (m *mockManager) Live() bool {
	return m.Called().Bool(0)
}

func (m *mockManager) Descriptor(name string) (Descriptor, bool) {
	args := m.Called(name)
	return args.Get(0).(Descriptor), args.Bool(1)
}

func (m *mockManager) MetaInfo(name string) (*attribute.Store, error) {
	args := m.Called(name)
	s, _ := args.Get(0).(*attribute.Store)
	return s, args.Error(1)
}

func (m *mockManager) Dispatch(inv *Invocation) error {
	return m.Called(inv).Error(0)
}

type fakeHandler func(params []value.TypedValue) (value.TypedValue, error)

type fakeCommand struct {
	desc Descriptor
	fn   fakeHandler
}

// fakeManager executes handlers on their own goroutine, or holds
// invocations for the test to answer when hold is set.
type fakeManager struct {
	id   uuid.UUID
	live atomic.Bool

	mu       sync.Mutex
	commands map[string]fakeCommand
	hold     bool
	held     []*Invocation
	dropped  []*Invocation
}

func newFakeManager() *fakeManager {
	m := &fakeManager{id: uuid.New(), commands: make(map[string]fakeCommand)}
	m.live.Store(true)
	return m
}

func (m *fakeManager) register(name string, desc Descriptor, fn fakeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[name] = fakeCommand{desc: desc, fn: fn}
}

func (m *fakeManager) unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commands, name)
}

func (m *fakeManager) setHold(hold bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hold = hold
}

// takeHeld returns and clears the held invocations.
func (m *fakeManager) takeHeld() []*Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.held
	m.held = nil
	return h
}

func (m *fakeManager) ID() uuid.UUID { return m.id }
func (m *fakeManager) Live() bool    { return m.live.Load() }

func (m *fakeManager) Descriptor(name string) (Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commands[name]
	return c.desc, ok
}

func (m *fakeManager) MetaInfo(name string) (*attribute.Store, error) {
	d, ok := m.Descriptor(name)
	if !ok {
		return nil, result.New(result.KindNameNotFound, "%s", name)
	}
	b := attribute.NewFunctionBuilder(attribute.NewPlain(d.Return))
	for i, p := range d.Params {
		b.AppendParameter(string(rune('a'+i)), attribute.NewPlain(p))
	}
	return b.Build()
}

func (m *fakeManager) Dispatch(inv *Invocation) error {
	m.mu.Lock()
	c, ok := m.commands[inv.Name]
	if inv.DropReturn {
		m.dropped = append(m.dropped, inv)
	}
	if m.hold {
		m.held = append(m.held, inv)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if !ok {
		return result.New(result.KindNameNotFound, "%s", inv.Name)
	}
	go func() {
		inv.Respond(result.Of(c.fn(inv.Params)))
	}()
	return nil
}

func addInt32(params []value.TypedValue) (value.TypedValue, error) {
	a, err := value.GetCopy[int32](params[0])
	if err != nil {
		return value.TypedValue{}, err
	}
	b, err := value.GetCopy[int32](params[1])
	if err != nil {
		return value.TypedValue{}, err
	}
	return value.New(a + b), nil
}

var addDesc = NewDescriptor(Param[int32](), Param[int32](), Param[int32]())
