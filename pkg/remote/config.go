package remote

import (
	"errors"
	"log/slog"
	"time"

	"github.com/motionsense/sense-go/pkg/log"
)

var (
	// ErrVersionMismatch is returned when the peer speaks another protocol
	// version.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrUnexpectedMessage is returned when the handshake sees the wrong
	// message type.
	ErrUnexpectedMessage = errors.New("unexpected message")
)

// Config configures a Client or Server.
type Config struct {
	// Logger receives operational log lines. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives frame and message events.
	ProtocolLogger log.Logger

	// MaxMessageSize bounds a frame payload. Zero selects the transport
	// default.
	MaxMessageSize uint32

	// HandshakeTimeout bounds the wait for the server's Hello.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds the wait for a MetaResponse.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Logger:           slog.Default(),
		HandshakeTimeout: 5 * time.Second,
		RequestTimeout:   5 * time.Second,
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	c.ProtocolLogger = log.OrNoop(c.ProtocolLogger)
}
