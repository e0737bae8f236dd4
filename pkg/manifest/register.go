package manifest

import (
	"context"
	"fmt"

	"github.com/motionsense/sense-go/pkg/engine"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/value"
)

// Register registers a handler for every declared command on e. A handler
// is either an engine.Handler or a function accepted by engine.RegisterFunc,
// whose signature must match the declaration. Every declared command needs a
// handler and every handler a declaration.
func (m *Manifest) Register(e *engine.Engine, handlers map[string]any) error {
	for name := range handlers {
		if _, ok := m.Command(name); !ok {
			return fmt.Errorf("%w: %s", ErrUndeclared, name)
		}
	}

	for i := range m.Commands {
		c := &m.Commands[i]
		fn, ok := handlers[c.Name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoHandler, c.Name)
		}
		desc, err := c.Descriptor()
		if err != nil {
			return err
		}
		meta, err := c.MetaInfo()
		if err != nil {
			return err
		}

		var h engine.Handler
		switch f := fn.(type) {
		case engine.Handler:
			h = f
		case func(context.Context, []value.TypedValue) (value.TypedValue, error):
			h = f
		default:
			adapted, got, err := engine.Adapt(fn)
			if err != nil {
				return fmt.Errorf("command %q: %w", c.Name, err)
			}
			if !got.Compatible(desc) {
				return result.New(result.KindSignatureMismatch, "%s: handler is %s, declared %s", c.Name, got, desc)
			}
			h = adapted
		}
		if err := e.Register(c.Name, desc, meta, h); err != nil {
			return err
		}
	}
	return nil
}

// NewEngine creates an engine with the manifest's frame layout and
// registers handlers.
func (m *Manifest) NewEngine(cfg engine.Config, handlers map[string]any) (*engine.Engine, error) {
	layout, err := m.FrameLayout()
	if err != nil {
		return nil, err
	}
	cfg.Frame = layout
	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.Register(e, handlers); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}
