// Package serial provides the line-oriented serial command link.
//
// A background goroutine reads the port and pushes bytes into a bounded
// buffer. The control loop drains that buffer one byte at a time with Poll,
// which never blocks.
package serial

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sweeney/coin-pulser/internal/logger"
)

// DefaultBuffer is the number of received bytes held before new ones are dropped.
const DefaultBuffer = 256

// Link wraps an open port.
type Link struct {
	port io.ReadWriteCloser
	log  *logger.Logger
	rx   chan byte

	dropped atomic.Uint64

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewLink starts reading port in the background. bufSize <= 0 uses DefaultBuffer.
func NewLink(port io.ReadWriteCloser, bufSize int, log *logger.Logger) *Link {
	if bufSize <= 0 {
		bufSize = DefaultBuffer
	}
	l := &Link{
		port:    port,
		log:     log,
		rx:      make(chan byte, bufSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Link) readLoop() {
	defer close(l.stopped)
	buf := make([]byte, 64)
	for {
		n, err := l.port.Read(buf)
		for _, b := range buf[:n] {
			select {
			case l.rx <- b:
			default:
				l.dropped.Add(1)
			}
		}
		if err != nil {
			select {
			case <-l.done:
			default:
				if !errors.Is(err, io.EOF) {
					l.log.Warnw("serial_read_failed", "err", err)
				}
			}
			return
		}
		select {
		case <-l.done:
			return
		default:
		}
	}
}

// Poll returns one received byte if available.
func (l *Link) Poll() (byte, bool) {
	select {
	case b := <-l.rx:
		return b, true
	default:
		return 0, false
	}
}

// Dropped returns the number of bytes discarded because the buffer was full.
func (l *Link) Dropped() uint64 {
	return l.dropped.Load()
}

// Println writes s followed by CRLF. Errors are logged at debug and
// otherwise ignored; the echo is diagnostic only.
func (l *Link) Println(s string) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := io.WriteString(l.port, s+"\r\n"); err != nil {
		l.log.Debugw("serial_write_failed", "err", err)
	}
}

// Close closes the port and waits for the reader to exit.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.port.Close()
		<-l.stopped
	})
	return err
}
