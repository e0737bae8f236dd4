package log

import (
	"bufio"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a file as a stream of CBOR items through a
// buffer. It is safe for concurrent use. Events reach the file on Flush and
// Close; a crash may lose the buffered tail, which Reader treats as EOF.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder *cbor.Encoder
	err     error
	closed  bool
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileLogger{
		file:    f,
		buf:     buf,
		encoder: eventCodec.NewEncoder(buf),
	}, nil
}

// Log encodes the event. After the first write error the logger stops
// writing; Err reports it.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.err != nil {
		return
	}
	l.err = l.encoder.Encode(event)
}

// Flush writes buffered events to the file.
func (l *FileLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *FileLogger) flushLocked() error {
	if l.closed {
		return l.err
	}
	if l.err == nil {
		l.err = l.buf.Flush()
	}
	return l.err
}

// Err returns the first error met while writing.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close flushes and closes the file. Later Log calls are ignored; Close is
// idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	err := l.flushLocked()
	l.closed = true
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ Logger = (*FileLogger)(nil)
