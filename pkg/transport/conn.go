package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// ErrConnectionClosed is returned by Send after Close.
var ErrConnectionClosed = errors.New("connection closed")

// Conn is a framed connection over any byte stream.
type Conn struct {
	rwc    io.ReadWriteCloser
	framer *Framer
	remote string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConn frames rwc. maxSize 0 selects DefaultMaxMessageSize.
func NewConn(rwc io.ReadWriteCloser, maxSize uint32) *Conn {
	c := &Conn{rwc: rwc, framer: NewFramer(rwc, maxSize)}
	if nc, ok := rwc.(net.Conn); ok && nc.RemoteAddr() != nil {
		c.remote = nc.RemoteAddr().String()
	}
	return c
}

// RemoteAddr returns the peer address, or "" for streams without one.
func (c *Conn) RemoteAddr() string { return c.remote }

// Framer exposes the underlying framer, for logging setup.
func (c *Conn) Framer() *Framer { return c.framer }

// Send writes one frame.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.framer.WriteFrame(data)
}

// Receive blocks until the next frame arrives. After Close it returns
// io.EOF.
func (c *Conn) Receive() ([]byte, error) {
	data, err := c.framer.ReadFrame()
	if err != nil && c.closed.Load() {
		return nil, io.EOF
	}
	return data, err
}

// Close closes the stream. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.rwc.Close()
	})
	return c.closeErr
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.closed.Load() }
