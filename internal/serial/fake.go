package serial

import (
	"bytes"
	"io"
	"sync"
)

// FakePort is an in-memory port for tests. Bytes passed to Feed are
// returned by Read; writes are captured.
type FakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	// WriteError, if set, is returned by Write.
	WriteError error
}

func NewFakePort() *FakePort {
	r, w := io.Pipe()
	return &FakePort{r: r, w: w}
}

// Feed makes s available to Read. It blocks until the reader has taken it.
func (p *FakePort) Feed(s string) {
	p.w.Write([]byte(s))
}

func (p *FakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteError != nil {
		return 0, p.WriteError
	}
	return p.written.Write(b)
}

func (p *FakePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

// Written returns everything written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}
