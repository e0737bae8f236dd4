// Package sim provides the handlers and frame producer of the console's
// demo engine.
package sim

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/motionsense/sense-go/pkg/engine"
	"github.com/motionsense/sense-go/pkg/frame"
	"github.com/motionsense/sense-go/pkg/manifest"
	"github.com/motionsense/sense-go/pkg/result"
)

// Depth image geometry of the simulated sensor.
const (
	DepthWidth  = 64
	DepthHeight = 48
	MaxDepth    = 8000
)

// Device is the simulated sensor state behind the demo commands.
type Device struct {
	gain atomic.Int32
	mode atomic.Int64
}

// NewDevice returns a device with the declared defaults.
func NewDevice() *Device {
	d := &Device{}
	d.gain.Store(5)
	return d
}

// Handlers returns the demo manifest handlers bound to d.
func (d *Device) Handlers() map[string]any {
	return map[string]any{
		"add": func(a, b int32) int32 { return a + b },
		"set_gain": func(g int32) error {
			if g < 0 || g > 10 {
				return result.New(result.KindRemote, "gain %d out of range [0, 10]", g)
			}
			d.gain.Store(g)
			return nil
		},
		"gain": func() int32 { return d.gain.Load() },
		"set_mode": func(m int64) error {
			if m < 0 || m > 2 {
				return result.New(result.KindRemote, "unknown mode %d", m)
			}
			d.mode.Store(m)
			return nil
		},
		"mode": func() int64 { return d.mode.Load() },
		"scale": func(ctx context.Context, mm, factor float64) (float64, error) {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			return mm * factor, nil
		},
	}
}

// NewEngine builds the demo engine around a fresh device.
func NewEngine(cfg engine.Config) (*engine.Engine, *Device, error) {
	m, err := manifest.Demo()
	if err != nil {
		return nil, nil, err
	}
	d := NewDevice()
	e, err := m.NewEngine(cfg, d.Handlers())
	if err != nil {
		return nil, nil, err
	}
	return e, d, nil
}

// Producer fills the demo frame. A bright disc sweeps across the depth
// image; hand count and confidence follow its position.
type Producer struct {
	device *Device
	tick   int
}

// NewProducer returns a producer whose output depends on d's gain.
func NewProducer(d *Device) *Producer {
	return &Producer{device: d}
}

// Produce writes one frame. The caller holds the snapshot lock.
func (p *Producer) Produce(s *frame.Snapshot) error {
	depthID, err := s.ID("depth")
	if err != nil {
		return err
	}
	handsID, err := s.ID("hands")
	if err != nil {
		return err
	}
	confID, err := s.ID("confidence")
	if err != nil {
		return err
	}

	p.tick++
	cx := p.tick % DepthWidth
	cy := DepthHeight / 2
	gain := float64(p.device.gain.Load())

	depth := make([]uint16, DepthWidth*DepthHeight)
	for y := 0; y < DepthHeight; y++ {
		for x := 0; x < DepthWidth; x++ {
			dist := math.Hypot(float64(x-cx), float64(y-cy))
			v := MaxDepth - dist*(100+gain*20)
			depth[y*DepthWidth+x] = uint16(max(0, min(MaxDepth, v)))
		}
	}
	if err := frame.Put(s, depthID, depth); err != nil {
		return err
	}

	// Hands are only tracked in the near half of the sweep.
	hands := int32(0)
	if cx < DepthWidth/2 {
		hands = int32(1 + cx%2)
	}
	if err := frame.Put(s, handsID, hands); err != nil {
		return err
	}
	if hands == 0 {
		return s.Invalidate(confID)
	}
	return frame.Put(s, confID, float32(1-float64(cx)/float64(DepthWidth)))
}
